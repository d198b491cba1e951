package serve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gftdcojp/buslog/internal/catalog"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// RunNATSResponder answers catalog lookups over NATS request-reply.
//
//	{prefix}.files.list  -> []FileInfo
//	{prefix}.files.get   -> FileInfo, request body is the file name
func RunNATSResponder(ctx context.Context, nc *nats.Conn, prefix string, cat catalog.Store, logger *zap.Logger) error {
	if prefix == "" {
		prefix = "buslog"
	}

	subject := prefix + ".files.*"
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var resp any
		switch op := msg.Subject[strings.LastIndexByte(msg.Subject, '.')+1:]; op {
		case "list":
			entries, err := cat.ListFiles(ctx)
			if err != nil {
				resp = map[string]string{"error": err.Error()}
				break
			}
			files := make([]FileInfo, 0, len(entries))
			for _, e := range entries {
				files = append(files, fileInfo(e))
			}
			resp = files
		case "get":
			entry, err := cat.GetFile(ctx, strings.TrimSpace(string(msg.Data)))
			switch {
			case errors.Is(err, catalog.ErrNotFound):
				resp = map[string]string{"error": "file not found"}
			case err != nil:
				resp = map[string]string{"error": err.Error()}
			default:
				resp = fileInfo(*entry)
			}
		default:
			resp = map[string]string{"error": fmt.Sprintf("unknown operation %q", op)}
		}

		data, _ := json.Marshal(resp)
		if err := msg.Respond(data); err != nil {
			logger.Debug("failed to respond", zap.String("subject", msg.Subject), zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", subject, err)
	}

	logger.Info("NATS responder started", zap.String("subject", subject))

	<-ctx.Done()
	sub.Unsubscribe()
	return nil
}
