package serviceerror

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfFollowsWrapping(t *testing.T) {
	cause := errors.New("row exists")
	err := fmt.Errorf("create letter: %w", Conflict("documents.create", "number_exists", cause))

	if KindOf(err) != KindConflict {
		t.Fatalf("expected conflict kind, got %s", KindOf(err))
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to stay reachable through Unwrap")
	}
	serviceErr, ok := As(err)
	if !ok {
		t.Fatalf("expected service error in chain")
	}
	if serviceErr.Code() != "documents.create.number_exists" {
		t.Fatalf("unexpected code %q", serviceErr.Code())
	}
	if serviceErr.Reason() != "number_exists" {
		t.Fatalf("unexpected reason %q", serviceErr.Reason())
	}
	if serviceErr.Message() != "row exists" {
		t.Fatalf("unexpected message %q", serviceErr.Message())
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatalf("unclassified errors must be internal")
	}
}

func TestErrorStringWithoutCause(t *testing.T) {
	err := Permission("documents.update", "edit_window_closed", nil)
	if err.Error() != "documents.update.edit_window_closed" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	serviceErr, _ := As(err)
	if serviceErr.Message() != "edit_window_closed" {
		t.Fatalf("expected reason as message, got %q", serviceErr.Message())
	}
}
