package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-checkout/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.Validate(migrate.Embedded()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := migrate.Validate(migrate.FromDir("migrations")); err != nil {
		t.Fatalf("Validate on disk: %v", err)
	}
}

func TestOrdersMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "create_orders")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_session_id ON orders (session_id)",
		"CHECK (discount_percent BETWEEN 0 AND 100)",
		"CHECK (grand_total = total + delivery_fee)",
		"DROP TABLE IF EXISTS orders",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLineItemsMigrationCascades(t *testing.T) {
	content := readMigration(t, "create_order_line_items")
	checks := []string{
		"FOREIGN KEY (order_id) REFERENCES orders(id) ON DELETE CASCADE",
		"CHECK (quantity > 0)",
		"DROP TABLE IF EXISTS order_line_items",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCartAndOutboxMigrations(t *testing.T) {
	cart := readMigration(t, "create_cart_items")
	if !strings.Contains(cart, "ux_cart_items_identity ON cart_items (user_id, product_id, selected_size, selected_color)") {
		t.Errorf("cart identity index missing")
	}
	outbox := readMigration(t, "create_outbox")
	for _, sub := range []string{"CREATE TABLE IF NOT EXISTS outbox_events", "CREATE TABLE IF NOT EXISTS outbox_dlq", "payload_json jsonb NOT NULL"} {
		if !strings.Contains(outbox, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCreateWritesValidMigration(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 5, 10, 11, 12, 0, time.UTC)
	path, err := migrate.Create(dir, "Add Order Notes!", now)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if filepath.Base(path) != "20260305101112_add_order_notes.sql" {
		t.Fatalf("unexpected file %q", path)
	}
	if err := migrate.Validate(migrate.FromDir(dir)); err != nil {
		t.Fatalf("generated migration invalid: %v", err)
	}
	if _, err := migrate.Create(dir, "add order notes", now); err == nil {
		t.Fatal("expected error for an existing version")
	}
	if _, err := migrate.Create(dir, "!!!", now); err == nil {
		t.Fatal("expected error for an empty slug")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"bad-name.sql":                  "-- +goose Up\n-- +goose Down\n",
		"20260101000000_no_down.sql":    "-- +goose Up\nSELECT 1;\n",
		"20260101000000_duplicate.sql":  "-- +goose Up\n-- +goose Down\n",
		"20260102000000_unbalanced.sql": "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	err := migrate.Validate(migrate.FromDir(dir))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	if got := len(multierr.Errors(err)); got != 4 {
		t.Fatalf("expected 4 problems, got %d: %v", got, err)
	}
}
