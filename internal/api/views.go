package api

import (
	"github.com/Popie52/offlinesync/internal/core"
	"github.com/Popie52/offlinesync/internal/model"
)

type actionView struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	KindLabel   string `json:"kind_label"`
	Payload     string `json:"payload"`
	Status      string `json:"status"`
	StatusLabel string `json:"status_label"`
	Priority    int    `json:"priority"`
	RetryCount  int    `json:"retry_count"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt *int64 `json:"completed_at,omitempty"`
}

func newActionView(a *model.Action) actionView {
	return actionView{
		ID:          a.ID,
		Kind:        string(a.Kind),
		KindLabel:   a.Kind.Label(),
		Payload:     a.Payload,
		Status:      string(a.Status),
		StatusLabel: a.Status.Label(),
		Priority:    a.Priority,
		RetryCount:  a.RetryCount,
		CreatedAt:   a.CreatedAt,
		CompletedAt: a.CompletedAt,
	}
}

func newActionViews(actions []*model.Action) []actionView {
	out := make([]actionView, 0, len(actions))
	for _, a := range actions {
		out = append(out, newActionView(a))
	}
	return out
}

type passView struct {
	Ran        bool   `json:"ran"`
	Outcome    string `json:"outcome,omitempty"`
	Attempted  int    `json:"attempted"`
	Completed  int    `json:"completed"`
	Skipped    int    `json:"skipped"`
	FailedID   string `json:"failed_id,omitempty"`
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at,omitempty"`
	FinishedAt int64  `json:"finished_at,omitempty"`
}

func newPassView(r core.PassReport) passView {
	v := passView{
		Ran:        r.Ran,
		Outcome:    string(r.Outcome),
		Attempted:  r.Attempted,
		Completed:  r.Completed,
		Skipped:    r.Skipped,
		FailedID:   r.FailedID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}
