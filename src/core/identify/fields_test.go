package identify

import (
	"testing"
)

func TestFieldStoreApply(t *testing.T) {
	t.Run("字段值到达后进入revealing状态", func(t *testing.T) {
		store := NewFieldStore()
		store.Apply("wine_name", "Margaux")

		state, ok := store.Get("wine_name")
		if !ok {
			t.Fatal("字段应已存在")
		}
		if state.Status != FieldStatusRevealing {
			t.Errorf("状态 = %q, want %q", state.Status, FieldStatusRevealing)
		}
		if state.Value != "Margaux" {
			t.Errorf("值 = %v, want Margaux", state.Value)
		}
	})

	t.Run("同名字段重复到达覆盖值并重新进入revealing", func(t *testing.T) {
		store := NewFieldStore()
		store.Apply("vintage", "2014")
		store.MarkRevealed("vintage")
		store.Apply("vintage", "2015")

		state, _ := store.Get("vintage")
		if state.Value != "2015" {
			t.Errorf("值 = %v, want 2015", state.Value)
		}
		if state.Status != FieldStatusRevealing {
			t.Errorf("状态 = %q, want %q", state.Status, FieldStatusRevealing)
		}
		if store.Len() != 1 {
			t.Errorf("字段数 = %d, want 1", store.Len())
		}
	})
}

func TestFieldStoreMarkRevealed(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*FieldStore)
		field   string
		want    bool
	}{
		{
			name:    "revealing状态的字段可以确认揭示",
			prepare: func(s *FieldStore) { s.Apply("region", "Bordeaux") },
			field:   "region",
			want:    true,
		},
		{
			name:    "不存在的字段返回false",
			prepare: func(s *FieldStore) {},
			field:   "ghost",
			want:    false,
		},
		{
			name: "已经complete的字段再次确认返回false",
			prepare: func(s *FieldStore) {
				s.Apply("country", "France")
				s.MarkRevealed("country")
			},
			field: "country",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewFieldStore()
			tt.prepare(store)
			if got := store.MarkRevealed(tt.field); got != tt.want {
				t.Errorf("MarkRevealed(%q) = %v, want %v", tt.field, got, tt.want)
			}
		})
	}

	t.Run("揭示完成后状态为complete", func(t *testing.T) {
		store := NewFieldStore()
		store.Apply("producer", "Château Margaux")
		store.MarkRevealed("producer")

		state, _ := store.Get("producer")
		if state.Status != FieldStatusComplete {
			t.Errorf("状态 = %q, want %q", state.Status, FieldStatusComplete)
		}
	})
}

func TestFieldStoreSnapshot(t *testing.T) {
	t.Run("快照按字段首次出现顺序排列", func(t *testing.T) {
		store := NewFieldStore()
		store.Apply("wine_name", "a")
		store.Apply("vintage", "b")
		store.Apply("region", "c")
		store.Apply("wine_name", "a2") // 重复到达不改变顺序

		snapshot := store.Snapshot()
		want := []string{"wine_name", "vintage", "region"}
		if len(snapshot) != len(want) {
			t.Fatalf("快照长度 = %d, want %d", len(snapshot), len(want))
		}
		for i, name := range want {
			if snapshot[i].Name != name {
				t.Errorf("快照[%d] = %q, want %q", i, snapshot[i].Name, name)
			}
		}
	})

	t.Run("每次识别请求的状态表相互隔离", func(t *testing.T) {
		first := NewFieldStore()
		second := NewFieldStore()
		first.Apply("wine_name", "Margaux")

		if second.Len() != 0 {
			t.Errorf("新状态表字段数 = %d, want 0", second.Len())
		}
		if _, ok := second.Get("wine_name"); ok {
			t.Error("新状态表不应看到其他请求的字段")
		}
	})
}
