package plan

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "entitlement-service/internal/pkg/errors"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestAddPeriod(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		n     int
		unit  DurationUnit
		want  time.Time
	}{
		{"month from Jan 31 in leap year", date(2024, 1, 31), 1, DurationMonths, date(2024, 3, 2)},
		{"month from Jan 31", date(2023, 1, 31), 1, DurationMonths, date(2023, 3, 3)},
		{"year from leap day", date(2024, 2, 29), 1, DurationYears, date(2025, 3, 1)},
		{"thirty days", date(2024, 1, 1), 30, DurationDays, date(2024, 1, 31)},
		{"twelve months", date(2024, 1, 15), 12, DurationMonths, date(2025, 1, 15)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddPeriod(tt.start, tt.n, tt.unit))
		})
	}
}

func TestPackageEndDateIsAfterStart(t *testing.T) {
	p := &Package{Duration: 1, DurationUnit: DurationDays}
	start := date(2024, 5, 1)
	assert.True(t, p.EndDate(start).After(start))
}

func TestPriceAt(t *testing.T) {
	now := date(2024, 6, 1)
	p := &Package{Price: 100}
	assert.Equal(t, 100.0, p.PriceAt(now))

	p.Discount = &Discount{Percentage: 25, ValidUntil: now.Add(time.Hour)}
	assert.Equal(t, 75.0, p.PriceAt(now))

	p.Discount.ValidUntil = now
	assert.Equal(t, 100.0, p.PriceAt(now), "discount lapses at validUntil")

	p.IsFree = true
	assert.Equal(t, 0.0, p.PriceAt(now))
}

func TestResolveTier(t *testing.T) {
	assert.Equal(t, TierEnterprise, (&Package{Name: "Basic", Tier: TierEnterprise}).ResolveTier())
	assert.Equal(t, TierPremium, (&Package{Name: "Premium Monthly"}).ResolveTier())
	assert.Equal(t, TierEnterprise, (&Package{Name: "ENTERPRISE"}).ResolveTier())
	assert.Equal(t, TierBasic, (&Package{Name: "Starter"}).ResolveTier())
}

func validPackage() *Package {
	trial := 14
	return &Package{
		Name:                 "Premium",
		Price:                49,
		Currency:             "USD",
		Duration:             1,
		DurationUnit:         DurationMonths,
		Tier:                 TierPremium,
		Ceilings:             Ceilings{Users: 5, Following: Unlimited},
		MaxFreeTrialDuration: &trial,
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validPackage().Validate())

	cases := map[string]func(p *Package){
		"empty name":      func(p *Package) { p.Name = " " },
		"negative price":  func(p *Package) { p.Price = -1 },
		"zero duration":   func(p *Package) { p.Duration = 0 },
		"unknown unit":    func(p *Package) { p.DurationUnit = "weeks" },
		"unknown tier":    func(p *Package) { p.Tier = "gold" },
		"bad ceiling":     func(p *Package) { p.Ceilings.Reports = -5 },
		"trial too long":  func(p *Package) { d := 366; p.MaxFreeTrialDuration = &d },
		"trial zero":      func(p *Package) { d := 0; p.MaxFreeTrialDuration = &d },
		"discount > 100":  func(p *Package) { p.Discount = &Discount{Percentage: 120, ValidUntil: time.Now()} },
		"discount no end": func(p *Package) { p.Discount = &Discount{Percentage: 10} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := validPackage()
			mutate(p)
			err := p.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
		})
	}
}

func TestCeilingJSON(t *testing.T) {
	out, err := json.Marshal(Ceilings{Users: 3, Following: Unlimited})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"maxUsers":3`)
	assert.Contains(t, string(out), `"maxFollowing":"unlimited"`)

	var c Ceilings
	require.NoError(t, json.Unmarshal([]byte(`{"maxUsers":"unlimited","maxReports":"12","maxPledges":4}`), &c))
	assert.True(t, c.Users.IsUnlimited())
	assert.Equal(t, Limit(12), c.Reports)
	assert.Equal(t, Limit(4), c.Pledges)

	assert.Error(t, json.Unmarshal([]byte(`{"maxUsers":-2}`), &c))
	assert.Error(t, json.Unmarshal([]byte(`{"maxUsers":"lots"}`), &c))
}

func TestCeilingAllows(t *testing.T) {
	assert.True(t, Unlimited.Allows(1_000_000))
	assert.True(t, Limit(5).Allows(5))
	assert.False(t, Limit(5).Allows(6))
	assert.False(t, Limit(0).Allows(1))
}
