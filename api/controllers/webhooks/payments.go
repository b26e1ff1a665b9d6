package webhooks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/clinicops-backend/api/responses"
	"github.com/angelmondragon/clinicops-backend/internal/reconcile"
	"github.com/angelmondragon/clinicops-backend/pkg/enums"
	"github.com/angelmondragon/clinicops-backend/pkg/logger"
	"github.com/angelmondragon/clinicops-backend/pkg/types"
)

const (
	maxWebhookBodyBytes = 1 << 20
	ackBody             = "OK"
)

// RouterRegistry resolves the ledger router of an instance.
type RouterRegistry interface {
	Get(instance string) (*reconcile.Router, bool)
}

// PaymentsWebhook ingests payment platform deliveries. Every delivery is
// acknowledged with 200 so the sender never retries; failures are logged.
// merge_patients is answered with a JSON result, everything else with "OK".
func PaymentsWebhook(registry RouterRegistry, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		instance := strings.TrimSpace(chi.URLParam(r, "instance"))
		if instance != "" {
			ctx = logg.WithInstance(ctx, instance)
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			logg.Error(ctx, "webhook body unreadable", err)
			responses.WriteText(w, http.StatusOK, ackBody)
			return
		}

		if registry == nil {
			logg.Error(ctx, "webhook router registry unavailable", nil)
			writeAck(w, body, reconcile.Outcome{Status: reconcile.StatusFailed, Reason: reconcile.ReasonInternal})
			return
		}

		router, ok := registry.Get(instance)
		if !ok {
			logg.Warn(ctx, fmt.Sprintf("webhook for unknown ledger instance %q", instance))
			writeAck(w, body, reconcile.Outcome{Status: reconcile.StatusFailed, Reason: reconcile.ReasonInternal})
			return
		}

		out := router.Handle(context.WithoutCancel(ctx), body)
		writeAck(w, body, out)
	}
}

func writeAck(w http.ResponseWriter, body []byte, out reconcile.Outcome) {
	if out.Kind != enums.EventKindMergePatients && !isMergeBody(body) {
		responses.WriteText(w, http.StatusOK, ackBody)
		return
	}
	responses.WriteJSON(w, http.StatusOK, mergeResponse(out))
}

func mergeResponse(out reconcile.Outcome) types.MergeResponse {
	if out.OK() {
		updated := out.Updated
		return types.MergeResponse{OK: true, Updated: &updated}
	}
	reason := out.Reason
	if reason == "" {
		reason = reconcile.ReasonInternal
	}
	return types.MergeResponse{OK: false, Error: reason}
}

// isMergeBody sniffs the kind when routing never got far enough to set it.
func isMergeBody(body []byte) bool {
	kind, err := reconcile.EventKindOf(body)
	return err == nil && kind == enums.EventKindMergePatients
}
