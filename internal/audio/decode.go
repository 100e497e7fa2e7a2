package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 将 MP3 字节解码为单声道 float32 样本。
// go-mp3 的输出固定为立体声 signed 16-bit LE PCM，
// 左右声道取平均降为单声道。返回样本数据和采样率。
func DecodeMP3(data []byte) ([]float32, int, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("MP3 解码失败: %w", err)
	}

	sampleRate := decoder.SampleRate()

	pcmData, err := io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("读取 PCM 数据失败: %w", err)
	}

	// 每个立体声帧 4 字节：左声道 2 字节 + 右声道 2 字节
	const bytesPerFrame = 4
	if len(pcmData)%bytesPerFrame != 0 {
		// 截掉不完整的尾部帧
		pcmData = pcmData[:len(pcmData)/bytesPerFrame*bytesPerFrame]
	}

	numFrames := len(pcmData) / bytesPerFrame
	samples := make([]float32, numFrames)

	for i := 0; i < numFrames; i++ {
		offset := i * bytesPerFrame
		left := int16(binary.LittleEndian.Uint16(pcmData[offset : offset+2]))
		right := int16(binary.LittleEndian.Uint16(pcmData[offset+2 : offset+4]))

		// 左右声道取平均得到单声道，归一化到 [-1.0, 1.0]
		mono := (float32(left) + float32(right)) / 2.0
		samples[i] = mono / 32768.0
	}

	return samples, sampleRate, nil
}
