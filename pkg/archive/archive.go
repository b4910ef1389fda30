// Package archive persists every bus message to SQLite as a write-behind
// audit log. The in-memory bus history remains the source for thread
// reconstruction; the archive is the durable side channel that survives
// restarts.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/logger"
)

// Archive is an append-only SQLite store of bus messages.
type Archive struct {
	db *sql.DB
	wg sync.WaitGroup
}

// Open creates (or reuses) the archive database at path.
func Open(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}

	a := &Archive{db: db}
	if err := a.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		message_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		sender TEXT NOT NULL,
		recipient TEXT NOT NULL,
		task_type TEXT DEFAULT '',
		book_id TEXT DEFAULT '',
		parent_id TEXT DEFAULT '',
		content TEXT DEFAULT '{}',
		metadata TEXT DEFAULT '{}',
		sent_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_book ON messages(book_id, sent_at);
	CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_id);
	`
	if _, err := a.db.Exec(schema); err != nil {
		return fmt.Errorf("init archive schema: %w", err)
	}
	return nil
}

// Record appends one message. Duplicate ids are ignored so replays are safe.
func (a *Archive) Record(msg *bus.Message) error {
	content, _ := json.Marshal(msg.Content)
	metadata, _ := json.Marshal(msg.Metadata)

	_, err := a.db.Exec(`
		INSERT OR IGNORE INTO messages
		(message_id, kind, sender, recipient, task_type, book_id, parent_id, content, metadata, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Kind.String(), msg.Sender.String(), msg.Recipient.String(),
		msg.TaskType().String(), msg.BookID(), msg.ParentID,
		string(content), string(metadata), msg.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("archive message %s: %w", msg.ID, err)
	}
	return nil
}

// Count returns the number of archived messages, optionally scoped to a book.
func (a *Archive) Count(bookID string) (int, error) {
	var n int
	var err error
	if bookID == "" {
		err = a.db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	} else {
		err = a.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE book_id = ?`, bookID).Scan(&n)
	}
	return n, err
}

// Follow consumes a bus tap until the channel closes, recording every
// message. Run it in its own goroutine; Close waits for it to drain.
func (a *Archive) Follow(tap <-chan *bus.Message) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for msg := range tap {
			if err := a.Record(msg); err != nil {
				logger.WarnCF("archive", "record failed", map[string]interface{}{
					"message_id": msg.ID, "error": err.Error(),
				})
			}
		}
	}()
}

// Close waits for any follower to finish, then closes the database.
func (a *Archive) Close() error {
	a.wg.Wait()
	return a.db.Close()
}
