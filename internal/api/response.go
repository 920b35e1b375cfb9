package api

import (
	"time"

	"codeberg.org/mutker/whistlectl/internal/engine"
	"codeberg.org/mutker/whistlectl/internal/state"
	"github.com/gin-gonic/gin"
)

// Response is the envelope of every API reply
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func respondSuccess(c *gin.Context, status int, data any, message string) {
	if message == "" {
		message = "ok"
	}
	c.JSON(status, Response{Success: true, Data: data, Message: message, Code: status})
}

func respondError(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{Success: false, Data: data, Message: message, Code: status})
}

type itemView struct {
	Name      string     `json:"name"`
	Value     any        `json:"value"`
	Kind      state.Kind `json:"kind"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func newItemView(item state.Item) itemView {
	var value any = item.Value.Text
	if item.Value.Kind == state.KindNumber {
		value = item.Value.Number
	}

	return itemView{
		Name:      item.Name,
		Value:     value,
		Kind:      item.Value.Kind,
		UpdatedAt: item.UpdatedAt,
	}
}

type resultView struct {
	Binding string         `json:"binding"`
	Outcome engine.Outcome `json:"outcome"`
	Value   string         `json:"value,omitempty"`
	Error   string         `json:"error,omitempty"`
}

func newResultView(res engine.Result) resultView {
	view := resultView{Binding: res.Binding, Outcome: res.Outcome}
	if res.Outcome == engine.OutcomePublished {
		view.Value = res.Value.String()
	}
	if res.Err != nil {
		view.Error = res.Err.Error()
	}
	return view
}
