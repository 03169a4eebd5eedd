package catalog

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestProductRepository_GetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := NewProductRepository(db)
	query := regexp.QuoteMeta(`SELECT id, name, slug, price, active`)

	t.Run("existing product", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("hoodie").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "price", "active"}).
				AddRow("hoodie", "Box Logo Hoodie", "box-logo-hoodie", int64(7500), true))

		product, err := repo.GetByID(context.Background(), "hoodie")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if product == nil || product.Price != 7500 || product.Name != "Box Logo Hoodie" {
			t.Fatalf("unexpected product: %+v", product)
		}
	})

	t.Run("missing product", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

		product, err := repo.GetByID(context.Background(), "ghost")
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if product != nil {
			t.Fatalf("expected nil product, got %+v", product)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
