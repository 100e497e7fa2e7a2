package pinyin

import (
	"strings"
	"unicode"

	"github.com/mozillazg/go-pinyin"
)

// Annotate 返回文本中汉字的带声调拼音标注，多音字列出全部读音并用 / 分隔。
// 非汉字字符保持原样。
//
//	"龘" -> "dá"
//	"妈" -> "mā"
//	"重" -> "zhòng/chóng"
func Annotate(text string) string {
	return convert(text, pinyin.Tone)
}

// Plain 返回不带声调的拼音标注。
func Plain(text string) string {
	return convert(text, pinyin.Normal)
}

func convert(text string, style int) string {
	var result strings.Builder
	var lastWasHanzi bool

	for _, char := range text {
		if unicode.Is(unicode.Han, char) {
			args := pinyin.NewArgs()
			args.Style = style
			args.Heteronym = true // 支持多音字
			readings := pinyin.Pinyin(string(char), args)

			if len(readings) > 0 && len(readings[0]) > 0 {
				if lastWasHanzi {
					result.WriteString(" ")
				}
				// 多音字用 / 分隔
				result.WriteString(strings.Join(readings[0], "/"))
			}
			lastWasHanzi = true
		} else {
			result.WriteRune(char)
			lastWasHanzi = false
		}
	}

	return result.String()
}
