package services

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS upload_cache (
	hash     TEXT PRIMARY KEY,
	media_id TEXT NOT NULL DEFAULT '',
	url      TEXT NOT NULL DEFAULT ''
)`

// SQLiteStore 以 sqlite 表保存缓存
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load() (map[string]Asset, error) {
	rows, err := s.db.Query(`SELECT hash, media_id, url FROM upload_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := map[string]Asset{}
	for rows.Next() {
		var hash string
		var a Asset
		if err := rows.Scan(&hash, &a.MediaID, &a.URL); err != nil {
			return nil, err
		}
		entries[hash] = a
	}
	return entries, rows.Err()
}

// Save 在一个事务里写入全部条目
func (s *SQLiteStore) Save(entries map[string]Asset) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO upload_cache (hash, media_id, url) VALUES (?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET media_id = excluded.media_id, url = excluded.url`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for hash, a := range entries {
		if _, err := stmt.Exec(hash, a.MediaID, a.URL); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
