package plan

import "testing"

func TestOrdinalOrdering(t *testing.T) {
	if !(Ordinal(Free) < Ordinal(Professional) && Ordinal(Professional) < Ordinal(Team)) {
		t.Fatalf("plan ordering broken: free=%d professional=%d team=%d",
			Ordinal(Free), Ordinal(Professional), Ordinal(Team))
	}
	if Ordinal("nonsense") != 0 {
		t.Fatalf("unknown plans must rank as free, got %d", Ordinal("nonsense"))
	}
}

func TestSatisfies(t *testing.T) {
	cases := []struct {
		have, required string
		want           bool
	}{
		{Free, Free, true},
		{Free, Professional, false},
		{Free, Team, false},
		{Professional, Free, true},
		{Professional, Professional, true},
		{Professional, Team, false},
		{Team, Team, true},
		{Team, Free, true},
	}
	for _, c := range cases {
		if got := Satisfies(c.have, c.required); got != c.want {
			t.Errorf("Satisfies(%s, %s) = %v, want %v", c.have, c.required, got, c.want)
		}
	}
}

func TestCatalog(t *testing.T) {
	if len(Catalog) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(Catalog))
	}

	free, ok := ByID(Free)
	if !ok || free.Price != 0 || free.UsageLimit != 10 {
		t.Fatalf("unexpected free plan: %+v", free)
	}
	pro, ok := ByID(Professional)
	if !ok || pro.Price != 99 || pro.UsageLimit != 500 || !pro.Popular {
		t.Fatalf("unexpected professional plan: %+v", pro)
	}
	team, ok := ByID(Team)
	if !ok || team.Price != 299 || team.UsageLimit != 2000 {
		t.Fatalf("unexpected team plan: %+v", team)
	}

	if _, ok := ByID("enterprise"); ok {
		t.Fatalf("unknown plan id must not resolve")
	}
}
