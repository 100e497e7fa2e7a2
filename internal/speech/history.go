package speech

import (
	"context"
	"fmt"
	"time"

	"github.com/iabetor/hanyin/internal/database"
)

// Utterance 一条朗读历史记录。
type Utterance struct {
	ID        int64
	Text      string
	Pinyin    string
	Backend   string // 实际完成朗读的后端
	Voice     string
	CreatedAt time.Time
}

// History 用 SQLite 记录朗读历史，供复习最近查过的字词。
type History struct {
	db *database.DB
}

// NewHistory 创建历史记录存储，首次使用时建表。
func NewHistory(db *database.DB) (*History, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS utterances (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		text       TEXT NOT NULL,
		pinyin     TEXT NOT NULL DEFAULT '',
		backend    TEXT NOT NULL DEFAULT '',
		voice      TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("创建 utterances 表失败: %w", err)
	}
	return &History{db: db}, nil
}

// Record 写入一条朗读记录。
func (h *History) Record(ctx context.Context, u Utterance) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO utterances (text, pinyin, backend, voice, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.Text, u.Pinyin, u.Backend, u.Voice, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("写入朗读记录失败: %w", err)
	}
	return nil
}

// Recent 返回最近的朗读记录，按时间倒序。
func (h *History) Recent(ctx context.Context, limit int) ([]Utterance, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, text, pinyin, backend, voice, created_at FROM utterances ORDER BY id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("查询朗读记录失败: %w", err)
	}
	defer rows.Close()

	var result []Utterance
	for rows.Next() {
		var u Utterance
		var ts int64
		if err := rows.Scan(&u.ID, &u.Text, &u.Pinyin, &u.Backend, &u.Voice, &ts); err != nil {
			return nil, fmt.Errorf("读取朗读记录失败: %w", err)
		}
		u.CreatedAt = time.Unix(ts, 0)
		result = append(result, u)
	}
	return result, rows.Err()
}
