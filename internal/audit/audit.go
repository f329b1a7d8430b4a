// Package audit implements the Audit Sink: an append-only file log plus a
// relational reasoning-session log, grounded on the teacher's tradelog.go
// append-and-rotate pattern (a gzip retention sweep over the session files,
// lumberjack rotation for the audit-events log) and on Traliaa-trade_bot's
// pgxpool usage for the relational half. Either
// target failing is logged and swallowed; it never reaches the trading path.
package audit

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"futures-trading-agent/internal/interfaces"
	"futures-trading-agent/internal/logger"
	"futures-trading-agent/internal/tradingerrors"
	"futures-trading-agent/internal/types"
)

// Sink implements interfaces.AuditSink with two independent append targets.
type Sink struct {
	fileRoot string
	pool     *pgxpool.Pool // nil when no DSN is configured
	events   *zap.Logger
}

var _ interfaces.AuditSink = (*Sink)(nil)

// New builds a Sink rooted at fileRoot for the JSON session log. If dsn is
// non-empty, it also opens a relational pool and ensures the schema exists;
// a failure to reach the database is logged and the Sink falls back to
// file-only logging rather than failing startup.
func New(ctx context.Context, fileRoot, dsn string) *Sink {
	if fileRoot == "" {
		fileRoot = "logs"
	}

	s := &Sink{fileRoot: fileRoot, events: buildEventLogger(fileRoot)}

	if dsn != "" {
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			logger.Warn(ctx, "Audit: failed to open relational pool, falling back to file-only", "error", err)
		} else if err := ensureSchema(ctx, pool); err != nil {
			logger.Warn(ctx, "Audit: failed to ensure schema, falling back to file-only", "error", err)
			pool.Close()
		} else {
			s.pool = pool
		}
	}

	return s
}

// buildEventLogger builds a dedicated zap stream for audit-write failures,
// separate from the application's slog stream, rotated by lumberjack the
// way the teacher's tradelog.CompressOlder rotated its own plain-text log.
func buildEventLogger(fileRoot string) *zap.Logger {
	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(fileRoot, "audit-events.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 10,
		MaxAge:     30, // days
		Compress:   true,
	})
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), writer, zapcore.WarnLevel)
	return zap.New(core)
}

// Close releases the relational pool, if any.
func (s *Sink) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS reasoning_sessions (
	id UUID PRIMARY KEY,
	symbol TEXT NOT NULL CHECK (symbol IN ('BTC','ETH','BNB','SOL','DOGE')),
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	reasoning TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	error TEXT
);
CREATE TABLE IF NOT EXISTS trade_records (
	id UUID PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES reasoning_sessions(id),
	symbol TEXT NOT NULL CHECK (symbol IN ('BTC','ETH','BNB','SOL','DOGE')),
	operation TEXT NOT NULL CHECK (operation IN ('Buy','Sell','Hold')),
	leverage INT,
	amount DOUBLE PRECISION,
	pricing DOUBLE PRECISION,
	stop_loss DOUBLE PRECISION,
	take_profit DOUBLE PRECISION
);`

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

// coreSymbol maps a normalized Symbol onto the closed relational enum
// {BTC, ETH, BNB, SOL, DOGE}. Per the specification's open question, an
// unmapped symbol is rejected at the audit layer with a logged warning, not
// on the trading path — the file log still records the full session.
func coreSymbol(s types.Symbol) (string, bool) {
	base := strings.ToUpper(string(s.Normalize()))
	if idx := strings.Index(base, "/"); idx >= 0 {
		base = base[:idx]
	}
	switch base {
	case "BTC", "ETH", "BNB", "SOL", "DOGE":
		return base, true
	default:
		return "", false
	}
}

// RecordSession writes the file log and, if configured, the relational log.
// Both are best-effort: a failure on either is logged via the dedicated
// events logger and never returned as an error the caller must handle.
func (s *Sink) RecordSession(ctx context.Context, session types.TradingSession) error {
	if err := s.writeFile(session); err != nil {
		infraErr := &tradingerrors.InfrastructureError{Op: "file audit write", Err: err}
		s.events.Warn(infraErr.Error(), zap.String("symbol", string(session.Symbol)))
		logger.Warn(ctx, infraErr.Error(), "symbol", session.Symbol)
	}

	if s.pool != nil {
		if err := s.writeRelational(ctx, session); err != nil {
			infraErr := &tradingerrors.InfrastructureError{Op: "relational audit write", Err: err}
			s.events.Warn(infraErr.Error(), zap.String("symbol", string(session.Symbol)))
			logger.Warn(ctx, infraErr.Error(), "symbol", session.Symbol)
		}
	}

	return nil
}

func (s *Sink) writeFile(session types.TradingSession) error {
	day := session.StartTime.Format("2006-01-02")
	dir := filepath.Join(s.fileRoot, "trade-"+day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	safeSymbol := strings.ReplaceAll(string(session.Symbol), "/", "-")
	name := fmt.Sprintf("%s-%d.json", safeSymbol, session.StartTime.UnixMilli())
	path := filepath.Join(dir, name)

	b, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func (s *Sink) writeRelational(ctx context.Context, session types.TradingSession) error {
	symbol, ok := coreSymbol(session.Symbol)
	if !ok {
		return fmt.Errorf("symbol %s is not in the relational audit enum", session.Symbol)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	sessionID := uuid.New()
	_, err = tx.Exec(ctx,
		`INSERT INTO reasoning_sessions (id, symbol, start_time, end_time, reasoning, success, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sessionID, symbol, session.StartTime, session.EndTime, session.Reasoning, session.Success, nullableString(session.Error),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	for _, trade := range session.Trades {
		tradeSymbol, ok := coreSymbol(trade.Symbol)
		if !ok {
			tradeSymbol = symbol
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO trade_records (id, session_id, symbol, operation, leverage, amount, pricing, stop_loss, take_profit)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), sessionID, tradeSymbol, string(trade.Operation), trade.Leverage, trade.Amount, trade.Pricing, trade.StopLoss, trade.TakeProfit,
		)
		if err != nil {
			return fmt.Errorf("insert trade record: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CompressOlder gzips session JSON files under the file root older than
// retentionDays and removes the uncompressed original, the same sweep the
// teacher's tradelog.CompressOlder ran over its own daily .txt logs, adapted
// to the per-session .json layout under trade-YYYY-MM-DD directories. A
// retentionDays of zero or less disables the sweep.
func (s *Sink) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	return filepath.WalkDir(s.fileRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}
		return compressAndRemove(path)
	})
}

func compressAndRemove(path string) error {
	gzPath := path + ".gz"
	if _, err := os.Stat(gzPath); err == nil {
		return os.Remove(path)
	}

	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(gzPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}
