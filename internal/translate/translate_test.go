package translate

import (
	"errors"
	"testing"

	"github.com/vormdb/vorm/filter"
	"github.com/vormdb/vorm/internal/engine"
)

func bookKinds() map[string]FieldInfo {
	return map[string]FieldInfo{
		"title":     {Kind: engine.FieldString},
		"genre":     {Kind: engine.FieldString},
		"year":      {Kind: engine.FieldInteger},
		"price":     {Kind: engine.FieldFloat},
		"published": {Kind: engine.FieldBoolean},
		"tags":      {Kind: engine.FieldString, Array: true},
	}
}

func translate(t *testing.T, nodes ...filter.Node) engine.Filter {
	t.Helper()
	f, err := Filter(nodes, bookKinds())
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	return f
}

func TestFilter_Buckets(t *testing.T) {
	f := translate(t,
		filter.F("genre").Eq("fiction"),
		filter.F("year").Gte(2000),
		filter.F("genre").Ne("horror"),
	)

	if len(f.Must) != 2 {
		t.Fatalf("must has %d clauses, want 2", len(f.Must))
	}
	if f.Must[0].Match == nil || f.Must[0].Match.Value != "fiction" {
		t.Errorf("first must clause = %+v, want genre match", f.Must[0])
	}
	if f.Must[1].Range == nil || f.Must[1].Range.GTE == nil || *f.Must[1].Range.GTE != 2000 {
		t.Errorf("second must clause = %+v, want year range", f.Must[1])
	}
	if len(f.MustNot) != 1 {
		t.Fatalf("must_not has %d clauses, want 1", len(f.MustNot))
	}
	if f.MustNot[0].Match == nil || f.MustNot[0].Match.Value != "horror" {
		t.Errorf("must_not clause = %+v, want genre exclusion", f.MustNot[0])
	}
}

func TestFilter_NilValueSkipped(t *testing.T) {
	f := translate(t,
		filter.F("genre").Eq(nil),
		filter.F("year").Eq(2020),
	)

	if len(f.Must) != 1 {
		t.Fatalf("must has %d clauses, want 1 (nil condition dropped)", len(f.Must))
	}
	if f.Must[0].Key != "year" {
		t.Errorf("surviving clause key = %q, want year", f.Must[0].Key)
	}
}

func TestFilter_UnknownField(t *testing.T) {
	_, err := Filter([]filter.Node{filter.F("missing").Eq(1)}, bookKinds())
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("err = %v, want ErrUnknownField", err)
	}
}

func TestFilter_UnsupportedOperator(t *testing.T) {
	_, err := Filter([]filter.Node{filter.NewCondition("year", "between", 5)}, bookKinds())
	if !errors.Is(err, ErrUnsupportedOperator) {
		t.Fatalf("err = %v, want ErrUnsupportedOperator", err)
	}
}

func TestFilter_NotInCasting(t *testing.T) {
	t.Run("integer field casts values", func(t *testing.T) {
		f := translate(t, filter.F("year").NotIn(1990, 1991))
		if len(f.MustNot) != 1 {
			t.Fatalf("must_not has %d clauses, want 1", len(f.MustNot))
		}
		except := f.MustNot[0].Match.Except
		if len(except) != 2 || except[0] != int64(1990) || except[1] != int64(1991) {
			t.Errorf("except = %v, want [1990 1991] as int64", except)
		}
	})

	t.Run("string field stringifies", func(t *testing.T) {
		f := translate(t, filter.F("genre").NotIn("a", 7))
		except := f.MustNot[0].Match.Except
		if except[0] != "a" || except[1] != "7" {
			t.Errorf("except = %v, want [a 7] as strings", except)
		}
	})

	t.Run("boolean field requires bools", func(t *testing.T) {
		if _, err := Filter([]filter.Node{filter.F("published").NotIn("yes")}, bookKinds()); err == nil {
			t.Fatal("expected error for non-bool exclusion value")
		}
	})

	t.Run("float field rejected", func(t *testing.T) {
		_, err := Filter([]filter.Node{filter.F("price").NotIn(9.99)}, bookKinds())
		if !errors.Is(err, ErrFloatNotIn) {
			t.Fatalf("err = %v, want ErrFloatNotIn", err)
		}
	})
}

func TestFilter_ContainsAllExpands(t *testing.T) {
	f := translate(t, filter.F("tags").ContainsAll("go", "db", "search"))

	if len(f.Must) != 3 {
		t.Fatalf("must has %d clauses, want 3", len(f.Must))
	}
	for i, want := range []string{"go", "db", "search"} {
		if f.Must[i].Match.Value != want {
			t.Errorf("clause %d value = %v, want %q", i, f.Must[i].Match.Value, want)
		}
	}
}

func TestFilter_OrGroup(t *testing.T) {
	f := translate(t, filter.Or(
		filter.F("genre").Eq("fiction"),
		filter.F("year").Gt(2015),
	))

	if len(f.Should) != 1 {
		t.Fatalf("should has %d clauses, want 1 nested group", len(f.Should))
	}
	group := f.Should[0].Group
	if group == nil || len(group.Should) != 2 {
		t.Fatalf("nested group = %+v, want 2 alternatives", group)
	}
}

func TestFilter_AndGroupFlattens(t *testing.T) {
	f := translate(t, filter.And(
		filter.F("genre").Eq("fiction"),
		filter.F("year").Gt(2015),
	))

	if len(f.Must) != 2 || len(f.Should) != 0 {
		t.Fatalf("filter = %+v, want two flattened must clauses", f)
	}
}

func TestFilter_RecursiveNesting(t *testing.T) {
	// (genre == fiction AND (year > 2015 OR published == true)) OR tags contains "go"
	f := translate(t, filter.Or(
		filter.And(
			filter.F("genre").Eq("fiction"),
			filter.Or(
				filter.F("year").Gt(2015),
				filter.F("published").Eq(true),
			),
		),
		filter.F("tags").Contains("go"),
	))

	if len(f.Should) != 1 {
		t.Fatalf("should has %d clauses, want 1", len(f.Should))
	}
	alts := f.Should[0].Group.Should
	if len(alts) != 2 {
		t.Fatalf("outer or has %d alternatives, want 2", len(alts))
	}

	inner := alts[0].Group
	if inner == nil {
		t.Fatal("first alternative should be a nested group")
	}
	if len(inner.Must) != 1 || len(inner.Should) != 1 {
		t.Fatalf("inner group = %+v, want 1 must and 1 nested or", inner)
	}
	innerOr := inner.Should[0].Group
	if innerOr == nil || len(innerOr.Should) != 2 {
		t.Fatalf("innermost or = %+v, want 2 alternatives", innerOr)
	}

	if alts[1].Match == nil || alts[1].Match.Value != "go" {
		t.Errorf("second alternative = %+v, want tags contains go", alts[1])
	}
}

func TestFilter_NegatedInsideOr(t *testing.T) {
	f := translate(t, filter.Or(
		filter.F("genre").Ne("horror"),
		filter.F("year").Eq(2020),
	))

	alts := f.Should[0].Group.Should
	if len(alts) != 2 {
		t.Fatalf("or has %d alternatives, want 2", len(alts))
	}
	neg := alts[0].Group
	if neg == nil || len(neg.MustNot) != 1 {
		t.Fatalf("negated alternative = %+v, want nested must_not", alts[0])
	}
}

func TestFilter_MiscOperators(t *testing.T) {
	t.Run("in", func(t *testing.T) {
		f := translate(t, filter.F("genre").In("a", "b"))
		if len(f.Must[0].Match.Any) != 2 {
			t.Errorf("any = %v, want 2 values", f.Must[0].Match.Any)
		}
	})

	t.Run("is_empty", func(t *testing.T) {
		f := translate(t, filter.F("tags").IsEmpty())
		if !f.Must[0].IsEmpty {
			t.Error("expected IsEmpty clause")
		}
	})

	t.Run("is_null", func(t *testing.T) {
		f := translate(t, filter.F("tags").IsNull())
		if !f.Must[0].IsNull {
			t.Error("expected IsNull clause")
		}
	})

	t.Run("text_match", func(t *testing.T) {
		f := translate(t, filter.F("title").TextMatch("deep learning"))
		if f.Must[0].Match.Text != "deep learning" {
			t.Errorf("text = %q", f.Must[0].Match.Text)
		}
	})

	t.Run("text_match requires string", func(t *testing.T) {
		if _, err := Filter([]filter.Node{filter.F("title").TextMatch("")}, bookKinds()); err != nil {
			t.Fatalf("empty text: %v", err)
		}
		if _, err := Filter([]filter.Node{filter.NewCondition("title", filter.OpTextMatch, 5)}, bookKinds()); err == nil {
			t.Fatal("expected error for non-string text_match")
		}
	})

	t.Run("values_count", func(t *testing.T) {
		gte := 2.0
		f := translate(t, filter.F("tags").ValuesCount(filter.CountRange{GTE: &gte}))
		if f.Must[0].ValuesCount == nil || *f.Must[0].ValuesCount.GTE != 2 {
			t.Errorf("values_count clause = %+v", f.Must[0])
		}
	})

	t.Run("values_count without boundary", func(t *testing.T) {
		if _, err := Filter([]filter.Node{filter.F("tags").ValuesCount(filter.CountRange{})}, bookKinds()); err == nil {
			t.Fatal("expected error for boundary-less values_count")
		}
	})
}

func TestFilter_Empty(t *testing.T) {
	f, err := Filter(nil, bookKinds())
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !f.IsEmpty() {
		t.Errorf("filter = %+v, want empty", f)
	}
}

func TestFilter_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		node filter.Node
	}{
		{"non-numeric range operand", filter.F("year").Gt("nineteen")},
		{"non-string text_match", filter.NewCondition("title", filter.OpTextMatch, 5)},
		{"non-bool not_in cast", filter.F("published").NotIn("yes")},
		{"boundary-less values_count", filter.F("tags").ValuesCount(filter.CountRange{})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Filter([]filter.Node{tc.node}, bookKinds())
			if !errors.Is(err, ErrInvalidFilterValue) {
				t.Fatalf("err = %v, want ErrInvalidFilterValue", err)
			}
		})
	}
}
