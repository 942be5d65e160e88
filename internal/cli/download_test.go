package cli

import (
	"testing"

	"github.com/rescale-labs/carfw/internal/models"
)

func testCars() []models.CarInfo {
	return []models.CarInfo{
		{ID: "car-a", Model: "GEN5W", Name: "2024 Tucson", Versions: []string{"23Q2.100"}},
		{ID: "car-b", Model: "GEN5W", Name: "2024 Tucson HEV", Versions: []string{"23Q2.200"}},
		{ID: "car-c", Model: "GEN6W", Name: "2025 Santa Fe", Versions: []string{"24Q1.100"}},
	}
}

func TestResolveCarByID(t *testing.T) {
	car, err := resolveCar(testCars(), "car-b", models.Selector{}, "US", models.BrandHyundai)
	if err != nil {
		t.Fatalf("resolveCar() error = %v", err)
	}
	if car.ID != "car-b" {
		t.Errorf("resolveCar() = %+v, want car-b", car)
	}
}

func TestResolveCarByIDMissing(t *testing.T) {
	if _, err := resolveCar(testCars(), "nope", models.Selector{}, "US", models.BrandHyundai); err == nil {
		t.Error("expected error for unknown car-id")
	}
}

func TestResolveCarBySelectorUnique(t *testing.T) {
	sel := models.Selector{Model: "GEN6W"}
	car, err := resolveCar(testCars(), "", sel, "US", models.BrandHyundai)
	if err != nil {
		t.Fatalf("resolveCar() error = %v", err)
	}
	if car.ID != "car-c" {
		t.Errorf("resolveCar() = %+v, want car-c", car)
	}
}

func TestResolveCarBySelectorAmbiguous(t *testing.T) {
	sel := models.Selector{Model: "GEN5W"}
	if _, err := resolveCar(testCars(), "", sel, "US", models.BrandHyundai); err == nil {
		t.Error("expected ambiguity error when --model matches multiple cars")
	}
}

func TestResolveCarBySelectorDisambiguatedByVersion(t *testing.T) {
	sel := models.Selector{Model: "GEN5W", Version: "23Q2.200"}
	car, err := resolveCar(testCars(), "", sel, "US", models.BrandHyundai)
	if err != nil {
		t.Fatalf("resolveCar() error = %v", err)
	}
	if car.ID != "car-b" {
		t.Errorf("resolveCar() = %+v, want car-b", car)
	}
}

func TestResolveCarNoMatch(t *testing.T) {
	sel := models.Selector{Model: "GEN9X"}
	if _, err := resolveCar(testCars(), "", sel, "US", models.BrandHyundai); err == nil {
		t.Error("expected error when no car matches the selector")
	}
}

func TestFilterCarsEmptySelectorReturnsAll(t *testing.T) {
	cars := testCars()
	got := filterCars(cars, models.Selector{})
	if len(got) != len(cars) {
		t.Errorf("filterCars with empty selector = %d cars, want %d", len(got), len(cars))
	}
}
