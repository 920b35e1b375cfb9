package state

import (
	"context"
	"strconv"
	"time"
)

// Kind tells how a Value was produced
type Kind string

const (
	KindNumber Kind = "number"
	KindString Kind = "string"
)

// Value is the state published for a binding
type Value struct {
	Kind   Kind
	Number float64
	Text   string
}

func NumberValue(n float64) Value {
	return Value{Kind: KindNumber, Number: n}
}

func StringValue(s string) Value {
	return Value{Kind: KindString, Text: s}
}

// String renders the value the way it is stored and published
func (v Value) String() string {
	if v.Kind == KindString {
		return v.Text
	}
	return strconv.FormatFloat(v.Number, 'f', -1, 64)
}

// Float returns the numeric form of the value; string values are parsed
func (v Value) Float() (float64, bool) {
	if v.Kind == KindNumber {
		return v.Number, true
	}
	f, err := strconv.ParseFloat(v.Text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Item is the latest published state of a binding
type Item struct {
	Name      string
	Value     Value
	UpdatedAt time.Time
}

// Publisher receives binding updates
type Publisher interface {
	Publish(ctx context.Context, name string, value Value) error
	Close() error
}

// Reader exposes the latest published states
type Reader interface {
	Get(name string) (Item, bool)
	List() []Item
}
