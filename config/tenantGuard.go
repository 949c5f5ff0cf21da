package config

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/mmdatafocus/autosync_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

const tenantColumn = "client_id"

var ErrCrossTenantWrite = errors.New("row belongs to another tenant")

// TenantGuardPlugin keeps every reconciliation pass inside one client. When the
// context carries a client id (utils.SetClientIdInContext):
//   - reads, updates and deletes on tables with a client_id column get
//     "client_id = ?" appended;
//   - creates fill an empty client_id and refuse rows of another client.
//
// Contexts without a client id pass through untouched, and
// appctx.ContextKeySkipTenantScope turns the guard off for cross-tenant
// listing. Raw SQL is never rewritten.
type TenantGuardPlugin struct{}

func NewTenantGuardPlugin() *TenantGuardPlugin { return &TenantGuardPlugin{} }

func (p *TenantGuardPlugin) Name() string { return "tenant_guard" }

func (p *TenantGuardPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	return errors.Join(
		cb.Query().Before("gorm:query").Register("tenant_guard:query", scopeToTenant),
		cb.Row().Before("gorm:row").Register("tenant_guard:row", scopeToTenant),
		cb.Update().Before("gorm:update").Register("tenant_guard:update", scopeToTenant),
		cb.Delete().Before("gorm:delete").Register("tenant_guard:delete", scopeToTenant),
		cb.Create().Before("gorm:create").Register("tenant_guard:create", stampTenant),
	)
}

// guardedTenant returns the client id the statement must be confined to, and the
// schema field holding it. ok is false when the guard does not apply.
func guardedTenant(db *gorm.DB) (clientId string, field *schema.Field, ok bool) {
	if db == nil || db.Statement == nil || db.Statement.Context == nil || db.Statement.Schema == nil {
		return "", nil, false
	}
	ctx := db.Statement.Context
	if skip, _ := appctx.GetBool(ctx, appctx.ContextKeySkipTenantScope); skip {
		return "", nil, false
	}
	clientId, _ = appctx.GetString(ctx, appctx.ContextKeyClientId)
	if clientId == "" {
		return "", nil, false
	}
	field = db.Statement.Schema.LookUpField(tenantColumn)
	if field == nil {
		return "", nil, false
	}
	return clientId, field, true
}

func scopeToTenant(db *gorm.DB) {
	clientId, _, ok := guardedTenant(db)
	if !ok {
		return
	}
	// An explicit client_id filter already in the statement is ANDed with this
	// one, so a mismatching filter simply matches nothing.
	db.Statement.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: db.Statement.Table, Name: tenantColumn}, Value: clientId},
	}})
}

func stampTenant(db *gorm.DB) {
	clientId, field, ok := guardedTenant(db)
	if !ok {
		return
	}
	ctx := db.Statement.Context
	rv := reflect.Indirect(db.Statement.ReflectValue)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := stampRow(ctx, field, reflect.Indirect(rv.Index(i)), clientId); err != nil {
				_ = db.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := stampRow(ctx, field, rv, clientId); err != nil {
			_ = db.AddError(err)
		}
	}
}

func stampRow(ctx context.Context, field *schema.Field, row reflect.Value, clientId string) error {
	value, zero := field.ValueOf(ctx, row)
	if zero {
		return field.Set(ctx, row, clientId)
	}
	if owner, _ := value.(string); owner != clientId {
		return fmt.Errorf("%w: %s row for client %q in a %q pass", ErrCrossTenantWrite, field.Schema.Table, owner, clientId)
	}
	return nil
}
