package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/angelmondragon/fieldreport/api/responses"
	"github.com/angelmondragon/fieldreport/pkg/broadcast"
	pkgerrors "github.com/angelmondragon/fieldreport/pkg/errors"
	"github.com/angelmondragon/fieldreport/pkg/logger"
)

const eventsKeepAlive = 25 * time.Second

type SyncEventSource interface {
	Subscribe(ctx context.Context) (<-chan broadcast.Message, func(), error)
}

// SyncEvents streams sync channel messages to the form UI as server-sent
// events until the client goes away.
func SyncEvents(source SyncEventSource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if source == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "sync events unavailable"))
			return
		}
		msgs, cancel, err := source.Subscribe(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "subscribe sync channel"))
			return
		}
		defer cancel()

		rc := http.NewResponseController(w)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "sync events stream cannot flush")
			return
		}

		ticker := time.NewTicker(eventsKeepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				raw, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Type, raw); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
