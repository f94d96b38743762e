package errstrategy

import (
	"errors"
	"testing"

	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

func TestParseCaseInsensitive(t *testing.T) {
	for _, s := range []string{"Propagate", "SKIP", "log", "Wrap"} {
		if _, err := Parse(s); err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
	}
	if _, err := Parse("bogus"); err == nil {
		t.Fatalf("expected error for unknown strategy")
	}
}

func TestPropagateReturnsError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Execute(Propagate, nil, "m", value.Str(""), func() (value.Value, error) {
		return value.Value{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestSkipSwallowsErrorAndReturnsZero(t *testing.T) {
	v, err := Execute(Skip, nil, "m", value.Str(""), func() (value.Value, error) {
		return value.Value{}, errors.New("boom")
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !value.Equal(v, value.Str("")) {
		t.Fatalf("expected zero value, got %+v", v)
	}
}

func TestLogSwallowsErrorLikeSkip(t *testing.T) {
	v, err := Execute(Log, nil, "m", value.Int64(0), func() (value.Value, error) {
		return value.Value{}, errors.New("boom")
	})
	if err != nil || !value.Equal(v, value.Int64(0)) {
		t.Fatalf("expected zero value and nil error, got %+v, %v", v, err)
	}
}

func TestExecuteTypedWrapSuccessProducesOkUnion(t *testing.T) {
	v, err := ExecuteTyped(Wrap, nil, "m", value.String(), func() (value.Value, error) {
		return value.Str("hi"), nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Kind != value.KindUnion || v.UnionTag != "Ok" {
		t.Fatalf("expected Ok union, got %+v", v)
	}
	if !value.Equal(v.Union, value.Str("hi")) {
		t.Fatalf("expected wrapped value hi, got %+v", v.Union)
	}
}

func TestExecuteTypedWrapFailureProducesErrUnion(t *testing.T) {
	v, err := ExecuteTyped(Wrap, nil, "m", value.String(), func() (value.Value, error) {
		return value.Value{}, errors.New("boom")
	})
	if err != nil {
		t.Fatalf("Wrap must not surface a Go error, got %v", err)
	}
	if v.Kind != value.KindUnion || v.UnionTag != "Err" {
		t.Fatalf("expected Err union, got %+v", v)
	}
}

func TestExecuteWithWrapReturnsInvalidStrategyUse(t *testing.T) {
	_, err := Execute(Wrap, nil, "m", value.Str(""), func() (value.Value, error) {
		return value.Str("x"), nil
	})
	if !errors.Is(err, ErrInvalidStrategyUse) {
		t.Fatalf("expected Execute(Wrap, ...) to return ErrInvalidStrategyUse, got %v", err)
	}
}
