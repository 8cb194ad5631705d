package store

import "log/slog"

func logStoreError(op string, err error) {
	slog.Error("store write failed", "op", op, "error", err)
}
