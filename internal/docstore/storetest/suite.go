// Package storetest holds behaviour every docstore.Store must share.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/docstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Run exercises a fresh, empty store returned by open.
func Run(t *testing.T, open func(t *testing.T) docstore.Store) {
	t.Run("InsertAssignsSequentialIDs", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		for want, text := range []string{"apple", "banana", "cherry"} {
			id, err := s.Insert(ctx, text)
			if err != nil {
				t.Fatalf("Insert(%q): %v", text, err)
			}
			if id != want {
				t.Errorf("Insert(%q) id = %d, want %d", text, id, want)
			}
		}
		n, err := s.Len(ctx)
		if err != nil || n != 3 {
			t.Errorf("Len = %d, %v; want 3", n, err)
		}
	})

	t.Run("GetAndAll", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		ids, err := s.InsertBatch(ctx, []string{"apple banana", "grape"})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(ids, []int{0, 1}) {
			t.Fatalf("InsertBatch ids = %v", ids)
		}
		text, err := s.Get(ctx, 1)
		if err != nil || text != "grape" {
			t.Errorf("Get(1) = %q, %v", text, err)
		}
		if _, err := s.Get(ctx, 7); !errors.Is(err, apperrors.ErrDocumentNotFound) {
			t.Errorf("Get(7) error = %v, want ErrDocumentNotFound", err)
		}
		all, err := s.All(ctx)
		if err != nil {
			t.Fatal(err)
		}
		want := map[int]string{0: "apple banana", 1: "grape"}
		if !reflect.DeepEqual(all, want) {
			t.Errorf("All = %v, want %v", all, want)
		}
		all[0] = "mutated"
		if text, _ := s.Get(ctx, 0); text != "apple banana" {
			t.Errorf("All leaked internal map: Get(0) = %q", text)
		}
	})

	t.Run("DeleteNeverReusesIDs", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		if _, err := s.InsertBatch(ctx, []string{"a", "b", "c"}); err != nil {
			t.Fatal(err)
		}
		ok, err := s.Delete(ctx, 2)
		if err != nil || !ok {
			t.Fatalf("Delete(2) = %v, %v", ok, err)
		}
		ok, err = s.Delete(ctx, 2)
		if err != nil || ok {
			t.Errorf("second Delete(2) = %v, %v; want false", ok, err)
		}
		id, err := s.Insert(ctx, "d")
		if err != nil {
			t.Fatal(err)
		}
		if id != 3 {
			t.Errorf("id after deleting the highest = %d, want 3", id)
		}
	})

	t.Run("DeleteBatchReportsMisses", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		if _, err := s.InsertBatch(ctx, []string{"a", "b", "c"}); err != nil {
			t.Fatal(err)
		}
		notFound, err := s.DeleteBatch(ctx, []int{0, 9, 2, 0})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(notFound, []int{9}) {
			t.Errorf("notFound = %v, want [9]", notFound)
		}
		all, _ := s.All(ctx)
		if !reflect.DeepEqual(all, map[int]string{1: "b"}) {
			t.Errorf("remaining = %v", all)
		}
	})

	t.Run("DeleteBatchAllFoundIsEmptyNotNil", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		if _, err := s.Insert(ctx, "a"); err != nil {
			t.Fatal(err)
		}
		notFound, err := s.DeleteBatch(ctx, []int{0})
		if err != nil {
			t.Fatal(err)
		}
		if notFound == nil || len(notFound) != 0 {
			t.Errorf("notFound = %#v, want empty slice", notFound)
		}
	})

	t.Run("EmptyTextIsStored", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		id, err := s.Insert(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		text, err := s.Get(ctx, id)
		if err != nil || text != "" {
			t.Errorf("Get = %q, %v", text, err)
		}
	})
}
