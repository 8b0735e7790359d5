package runner

import (
	"context"
	"fmt"

	"github.com/raw-labs/mxcp/internal/endpoint"
	"github.com/raw-labs/mxcp/internal/identity"
	"github.com/raw-labs/mxcp/internal/mxerrors"
	"github.com/raw-labs/mxcp/internal/sqlsession"
	"github.com/raw-labs/mxcp/internal/types"
)

// SQLRunner executes an endpoint's SQL source against the shared session
// and shapes the result set according to return_type (spec §4.5).
type SQLRunner struct{}

func (SQLRunner) Run(ctx context.Context, ep *endpoint.Endpoint, args map[string]any, _ *identity.UserContext, session *sqlsession.Session) (any, error) {
	rows, err := session.Execute(ctx, ep.Source.Code, args)
	if err != nil {
		return nil, err
	}
	return shape(rows, ep.ReturnType)
}

// shape maps rows onto return_type per spec §4.5: object requires exactly
// one row mapped to its columns; array maps each row to one element
// (objects, or the row's single column for scalar element types); a bare
// scalar return_type requires exactly one row and one column.
func shape(rows *sqlsession.Rows, spec *types.TypeSpec) (any, error) {
	if spec == nil {
		if rows.Len() == 0 {
			return nil, nil
		}
		objs := rows.AsObjects()
		if len(objs) == 1 {
			return objs[0], nil
		}
		return toAny(objs), nil
	}

	switch spec.Kind {
	case types.KindObject:
		if rows.Len() == 0 {
			return nil, mxerrors.NewNoRows("object return_type requires exactly one row, got 0", nil)
		}
		if rows.Len() > 1 {
			return nil, mxerrors.NewTooManyRows(fmt.Sprintf("object return_type requires exactly one row, got %d", rows.Len()), nil)
		}
		return rows.AsObjects()[0], nil

	case types.KindArray:
		elemIsScalar := spec.Items != nil && spec.Items.Kind != types.KindObject && spec.Items.Kind != types.KindArray
		if !elemIsScalar {
			return toAny(rows.AsObjects()), nil
		}
		out := make([]any, rows.Len())
		for i, row := range rows.Values {
			if len(row) != 1 {
				return nil, mxerrors.NewColumnMismatch(fmt.Sprintf("scalar array element expects exactly 1 column, got %d", len(row)), nil)
			}
			out[i] = row[0]
		}
		return out, nil

	default:
		if rows.Len() == 0 {
			return nil, mxerrors.NewNoRows("scalar return_type requires exactly one row, got 0", nil)
		}
		if rows.Len() > 1 {
			return nil, mxerrors.NewTooManyRows(fmt.Sprintf("scalar return_type requires exactly one row, got %d", rows.Len()), nil)
		}
		row := rows.Values[0]
		if len(row) != 1 {
			return nil, mxerrors.NewColumnMismatch(fmt.Sprintf("scalar return_type requires exactly 1 column, got %d", len(row)), nil)
		}
		return row[0], nil
	}
}

func toAny(objs []map[string]any) []any {
	out := make([]any, len(objs))
	for i, o := range objs {
		out[i] = o
	}
	return out
}
