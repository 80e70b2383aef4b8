package app_test

import (
	"testing"

	"github.com/rs/zerolog"

	"olmbox/internal/app"
	"olmbox/internal/olm"
)

func TestApp_ReusesManagers(t *testing.T) {
	a := app.New(app.Config{
		Home:     t.TempDir(),
		Provider: olm.NewProvider("pass"),
		Logger:   zerolog.Nop(),
	})
	defer a.Close()

	first, err := a.Manager("@alice:example.org", "DEV")
	if err != nil {
		t.Fatalf("Manager: %v", err)
	}
	second, err := a.Manager("@alice:example.org", "DEV")
	if err != nil {
		t.Fatalf("Manager: %v", err)
	}
	if first != second {
		t.Fatal("same account returned two manager instances")
	}

	other, err := a.Manager("@alice:example.org", "OTHERDEV")
	if err != nil {
		t.Fatalf("Manager: %v", err)
	}
	if other == first {
		t.Fatal("different devices share a manager")
	}
}

func TestApp_DisabledEncryption(t *testing.T) {
	a := app.New(app.Config{
		Home:              t.TempDir(),
		DisableEncryption: true,
		Logger:            zerolog.Nop(),
	})
	defer a.Close()

	m, err := a.Manager("@alice:example.org", "DEV")
	if err != nil {
		t.Fatalf("Manager: %v", err)
	}
	if m.Enabled() {
		t.Fatal("manager enabled despite DisableEncryption")
	}
}

func TestApp_ClosedRejectsNewManagers(t *testing.T) {
	a := app.New(app.Config{
		Home:     t.TempDir(),
		Provider: olm.NewProvider("pass"),
		Logger:   zerolog.Nop(),
	})
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := a.Manager("@alice:example.org", "DEV"); err == nil {
		t.Fatal("closed app handed out a manager")
	}
}
