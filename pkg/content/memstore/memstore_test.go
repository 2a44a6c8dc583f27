package memstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/nara/pkg/content"
	"github.com/MrWong99/nara/pkg/content/contenttest"
	"github.com/MrWong99/nara/pkg/content/memstore"
)

func TestConformance(t *testing.T) {
	t.Parallel()
	contenttest.Run(t, func(*testing.T) contenttest.ReadWriter { return memstore.New() })
}

func TestPingErr(t *testing.T) {
	t.Parallel()
	s := memstore.New()
	s.PingErr = errors.New("down")
	if err := s.Ping(context.Background()); err == nil {
		t.Error("expected PingErr to be returned")
	}
}

func TestPutBook_EmptyID(t *testing.T) {
	t.Parallel()
	if err := memstore.New().PutBook(context.Background(), content.Book{Title: "untitled"}); err == nil {
		t.Error("expected error for empty book id")
	}
}
