package diff

import (
	"fmt"

	"github.com/ridoystarlord/schemasync/schema"
)

type OperationType string

const (
	CreateTable  OperationType = "CREATE_TABLE"
	AddColumn    OperationType = "ADD_COLUMN"
	AlterColumn  OperationType = "ALTER_COLUMN"
	DropColumn   OperationType = "DROP_COLUMN"
	RenameColumn OperationType = "RENAME_COLUMN"
	AddIndex     OperationType = "ADD_INDEX"
	DropIndex    OperationType = "DROP_INDEX"
	// DropTable is never planned; it only appears in inverted plans.
	DropTable OperationType = "DROP_TABLE"
)

// Operation is one schema change. It carries everything a dialect needs to
// render it without consulting the declarations again.
type Operation struct {
	Type  OperationType
	Table string

	// Spec is the declared table, Actual the live one (nil for CREATE_TABLE).
	Spec   *schema.TableSpec
	Actual *schema.TableSpec

	// Column is the declared column (the live one for DROP_COLUMN).
	// Previous is the live column an ALTER_COLUMN or RENAME_COLUMN starts from.
	Column   *schema.ColumnSpec
	Previous *schema.ColumnSpec

	Index *schema.IndexSpec

	// Extra lists live columns and indexes that are not declared but must
	// survive a table rebuild.
	Extra        []schema.ColumnSpec
	ExtraIndexes []schema.IndexSpec
}

func (op Operation) String() string {
	switch {
	case op.Type == RenameColumn && op.Previous != nil && op.Column != nil:
		return fmt.Sprintf("%s %s.%s -> %s", op.Type, op.Table, op.Previous.Name, op.Column.Name)
	case op.Column != nil:
		return fmt.Sprintf("%s %s.%s", op.Type, op.Table, op.Column.Name)
	case op.Index != nil:
		return fmt.Sprintf("%s %s.%s", op.Type, op.Table, op.Index.Name)
	case op.Table != "":
		return fmt.Sprintf("%s %s", op.Type, op.Table)
	}
	return string(op.Type)
}

// Invert returns the operations undoing ops, in reverse order.
func Invert(ops []Operation) []Operation {
	out := make([]Operation, 0, len(ops))
	for i := len(ops) - 1; i >= 0; i-- {
		op := ops[i]
		inv := Operation{
			Table:        op.Table,
			Spec:         op.Actual,
			Actual:       op.Spec,
			Index:        op.Index,
			Extra:        op.Extra,
			ExtraIndexes: op.ExtraIndexes,
		}
		switch op.Type {
		case CreateTable:
			inv.Type = DropTable
			inv.Spec = op.Spec
		case DropTable:
			inv.Type = CreateTable
			inv.Spec = op.Spec
			inv.Actual = nil
		case AddColumn:
			inv.Type = DropColumn
			inv.Column = op.Column
		case DropColumn:
			inv.Type = AddColumn
			inv.Column = op.Column
		case AlterColumn, RenameColumn:
			inv.Type = op.Type
			inv.Column = op.Previous
			inv.Previous = op.Column
			if op.Type == AlterColumn && op.Actual != nil && op.Spec != nil {
				// columns added by the plan are still present when the
				// alteration is undone
				inv.Extra = nil
				for _, c := range op.Spec.Columns {
					if !op.Actual.HasColumn(c.Name) && !renamedTo(ops, op.Table, c.Name) {
						inv.Extra = append(inv.Extra, c)
					}
				}
			}
		case AddIndex:
			inv.Type = DropIndex
		case DropIndex:
			inv.Type = AddIndex
		}
		out = append(out, inv)
	}
	return out
}

func renamedTo(ops []Operation, table, column string) bool {
	for _, op := range ops {
		if op.Type == RenameColumn && op.Table == table && op.Column.Name == column {
			return true
		}
	}
	return false
}
