package stats

import (
	"database/sql"
	"errors"
	"math"
	"testing"

	"github.com/lox/sapweather/internal/models"
)

func nulls(values ...float64) []sql.NullFloat64 {
	out := make([]sql.NullFloat64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		out[i] = sql.NullFloat64{Float64: v, Valid: true}
	}
	return out
}

func TestPearson(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name         string
		xs, ys       []sql.NullFloat64
		wantValid    bool
		wantR        float64
		wantStrength models.Strength
		wantN        int
	}{
		{"perfect positive", nulls(1, 2, 3, 4), nulls(2, 4, 6, 8), true, 1, models.StrengthStrong, 4},
		{"perfect negative", nulls(1, 2, 3, 4), nulls(8, 6, 4, 2), true, -1, models.StrengthStrong, 4},
		{"two samples", nulls(1, 2), nulls(3, 4), false, 0, models.StrengthNone, 2},
		{"nulls filtered below minimum", nulls(1, nan, 3, nan), nulls(1, 2, nan, 4), false, 0, models.StrengthNone, 1},
		{"constant x", nulls(5, 5, 5, 5), nulls(1, 2, 3, 4), false, 0, models.StrengthNone, 4},
		{"nulls skipped", nulls(1, 2, nan, 3, 4), nulls(10, 20, 99, 30, 40), true, 1, models.StrengthStrong, 4},
		{"uncorrelated", nulls(1, 2, 3, 4, 5), nulls(2, 4, 1, 5, 3), true, 0.3, models.StrengthModerate, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pearson(tt.xs, tt.ys)
			if got.Coefficient.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v", got.Coefficient.Valid, tt.wantValid)
			}
			if tt.wantValid && got.Coefficient.Float64 != tt.wantR {
				t.Errorf("r = %v, want %v", got.Coefficient.Float64, tt.wantR)
			}
			if got.Strength != tt.wantStrength {
				t.Errorf("Strength = %s, want %s", got.Strength, tt.wantStrength)
			}
			if got.SampleSize != tt.wantN {
				t.Errorf("SampleSize = %d, want %d", got.SampleSize, tt.wantN)
			}
		})
	}
}

func TestPearson_Bounded(t *testing.T) {
	xs := nulls(0.1, 0.2, 0.30000000000000004, 0.4, 0.5)
	ys := nulls(1e9, 2e9, 3e9, 4e9, 5e9)
	got := Pearson(xs, ys)
	if got.Coefficient.Float64 > 1 || got.Coefficient.Float64 < -1 {
		t.Errorf("r = %v, outside [-1, 1]", got.Coefficient.Float64)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		r    float64
		n    int
		want models.Strength
	}{
		{0.5, 10, models.StrengthStrong},
		{-0.72, 10, models.StrengthStrong},
		{0.49, 10, models.StrengthModerate},
		{-0.3, 10, models.StrengthModerate},
		{0.29, 10, models.StrengthWeak},
		{0.1, 10, models.StrengthWeak},
		{0.09, 10, models.StrengthNone},
		{0.9, 2, models.StrengthNone},
	}
	for _, tt := range tests {
		got := Classify(sql.NullFloat64{Float64: tt.r, Valid: true}, tt.n)
		if got != tt.want {
			t.Errorf("Classify(%v, %d) = %s, want %s", tt.r, tt.n, got, tt.want)
		}
	}
	if got := Classify(sql.NullFloat64{}, 10); got != models.StrengthNone {
		t.Errorf("Classify(null) = %s, want none", got)
	}
}

func TestMeanVariance(t *testing.T) {
	if got := Mean([]float64{2, 4, 6}); got != 4 {
		t.Errorf("Mean = %v, want 4", got)
	}
	if got := Variance([]float64{2, 4, 6}); math.Abs(got-8.0/3) > 1e-12 {
		t.Errorf("Variance = %v, want 8/3", got)
	}
	if got := Variance([]float64{7, 7, 7}); got != 0 {
		t.Errorf("Variance(constant) = %v, want 0", got)
	}
}

func TestRSquared(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	if got := RSquared(actual, actual); got != 1 {
		t.Errorf("perfect fit R2 = %v, want 1", got)
	}
	mean := []float64{2.5, 2.5, 2.5, 2.5}
	if got := RSquared(actual, mean); got != 0 {
		t.Errorf("mean fit R2 = %v, want 0", got)
	}
}

func TestInverse(t *testing.T) {
	m := Matrix{{4, 7}, {2, 6}}
	inv, err := Inverse(m)
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}
	want := Matrix{{0.6, -0.7}, {-0.2, 0.4}}
	for i := range want {
		for j := range want[i] {
			if math.Abs(inv[i][j]-want[i][j]) > 1e-12 {
				t.Errorf("inv[%d][%d] = %v, want %v", i, j, inv[i][j], want[i][j])
			}
		}
	}

	// A zero leading entry needs a row swap.
	swapped, err := Inverse(Matrix{{0, 1}, {1, 0}})
	if err != nil {
		t.Fatalf("Inverse with pivoting: %v", err)
	}
	if swapped[0][1] != 1 || swapped[1][0] != 1 {
		t.Errorf("swapped inverse = %v", swapped)
	}
}

func TestInverse_Singular(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
	}{
		{"duplicate rows", Matrix{{1, 2}, {1, 2}}},
		{"zero matrix", Matrix{{0, 0}, {0, 0}}},
		{"dependent column", Matrix{{1, 2, 3}, {4, 5, 9}, {7, 8, 15}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Inverse(tt.m); !errors.Is(err, ErrSingular) {
				t.Errorf("err = %v, want ErrSingular", err)
			}
		})
	}

	if _, err := Inverse(Matrix{{1, 2, 3}}); !errors.Is(err, ErrDimension) {
		t.Errorf("non-square err = %v, want ErrDimension", err)
	}
}

func TestMultiplyAndTranspose(t *testing.T) {
	a := Matrix{{1, 2, 3}, {4, 5, 6}}
	at := Transpose(a)
	if at.Rows() != 3 || at.Cols() != 2 || at[2][1] != 6 {
		t.Fatalf("Transpose = %v", at)
	}

	p, err := Multiply(a, at)
	if err != nil {
		t.Fatal(err)
	}
	want := Matrix{{14, 32}, {32, 77}}
	for i := range want {
		for j := range want[i] {
			if p[i][j] != want[i][j] {
				t.Errorf("p[%d][%d] = %v, want %v", i, j, p[i][j], want[i][j])
			}
		}
	}

	if _, err := Multiply(a, a); !errors.Is(err, ErrDimension) {
		t.Errorf("err = %v, want ErrDimension", err)
	}
}

func TestLeastSquares(t *testing.T) {
	// y = 2 + 3a - b exactly
	x := Matrix{
		{1, 1, 0},
		{1, 2, 1},
		{1, 3, 5},
		{1, 4, 2},
		{1, 5, 7},
	}
	y := make([]float64, len(x))
	for i, row := range x {
		y[i] = 2 + 3*row[1] - row[2]
	}

	beta, err := LeastSquares(x, y)
	if err != nil {
		t.Fatalf("LeastSquares: %v", err)
	}
	want := []float64{2, 3, -1}
	for i := range want {
		if math.Abs(beta[i]-want[i]) > 1e-8 {
			t.Errorf("beta[%d] = %v, want %v", i, beta[i], want[i])
		}
	}
}

func TestLeastSquares_Underdetermined(t *testing.T) {
	x := Matrix{{1, 2, 3}, {1, 4, 5}}
	if _, err := LeastSquares(x, []float64{1, 2}); !errors.Is(err, ErrUnderdetermined) {
		t.Errorf("err = %v, want ErrUnderdetermined", err)
	}
}
