//go:build ignore

// This program generates the sample workbooks used by benchmarks and manual testing:
//
//	go run testdata/generate_fixtures.go
package main

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/klytics/xlengine/internal/sheet"
	"github.com/klytics/xlengine/internal/table"
)

var (
	departments = []string{"IT", "HR", "Finance", "Sales", "Marketing"}
	cities      = []string{"Lisbon", "Porto", "Madrid", "Berlin", "Paris", "Dublin"}
	firstNames  = []string{"Ana", "Bruno", "Carla", "David", "Eva", "Filipe", "Gina", "Hugo", "Ines", "Joao"}
)

func main() {
	if err := generateEmployees(1000); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating employees.xlsx: %v\n", err)
		os.Exit(1)
	}
	if err := generateDepartments(); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating departments.xlsx: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Test fixtures generated successfully.")
}

// generateEmployees writes the wide "Structured_Data" sheet: ids, text, integer,
// float, date and boolean columns with a few blanks.
func generateEmployees(n int) error {
	rng := rand.New(rand.NewSource(42))
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

	cols := map[string]*table.Column{}
	order := []struct {
		name string
		typ  table.Type
	}{
		{"id", table.Int}, {"name", table.Text}, {"department", table.Text},
		{"salary", table.Int}, {"performance_score", table.Float}, {"age", table.Int},
		{"hire_date", table.Time}, {"city", table.Text}, {"bonus", table.Float}, {"remote", table.Bool},
	}
	var list []*table.Column
	for _, o := range order {
		c := &table.Column{Name: o.name, Type: o.typ, Values: make([]any, n)}
		cols[o.name] = c
		list = append(list, c)
	}

	for i := 0; i < n; i++ {
		cols["id"].Values[i] = int64(i + 1)
		cols["name"].Values[i] = fmt.Sprintf("%s %03d", firstNames[rng.Intn(len(firstNames))], i)
		cols["department"].Values[i] = departments[rng.Intn(len(departments))]
		cols["salary"].Values[i] = int64(30000 + rng.Intn(90000))
		cols["performance_score"].Values[i] = float64(rng.Intn(50)+50) / 10
		cols["age"].Values[i] = int64(22 + rng.Intn(40))
		cols["hire_date"].Values[i] = start.AddDate(0, 0, rng.Intn(3000))
		cols["city"].Values[i] = cities[rng.Intn(len(cities))]
		if rng.Intn(10) > 0 {
			cols["bonus"].Values[i] = float64(rng.Intn(500000)) / 100
		}
		cols["remote"].Values[i] = rng.Intn(2) == 1
	}

	t, err := table.New("Structured_Data", list...)
	if err != nil {
		return err
	}
	return sheet.Save(t, "testdata/employees.xlsx", "Structured_Data")
}

// generateDepartments writes a small lookup sheet keyed like employees.department,
// with one department that has no employees.
func generateDepartments() error {
	names := append(append([]any{}, toAny(departments)...), "Legal")
	t, err := table.New("Departments",
		&table.Column{Name: "department", Type: table.Text, Values: names},
		&table.Column{Name: "head", Type: table.Text, Values: []any{"Rita", "Sam", "Tomas", "Ursula", "Vera", "Walter"}},
		&table.Column{Name: "budget", Type: table.Int, Values: []any{int64(900000), int64(250000), int64(400000), int64(1200000), int64(600000), int64(150000)}},
	)
	if err != nil {
		return err
	}
	return sheet.Save(t, "testdata/departments.xlsx", "Departments")
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
