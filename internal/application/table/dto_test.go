package table

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestFloorRequestValidation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	from, to := uuid.New(), uuid.New()

	tests := []struct {
		name    string
		req     any
		wantErr bool
	}{
		{"transfer between two tables", TransferRequest{FromTableID: from, ToTableID: to}, false},
		{"transfer without target", TransferRequest{FromTableID: from}, true},
		{"merge whole order", MergeRequest{FromTableID: from, ToTableID: to}, false},
		{"merge selected lines", MergeRequest{FromTableID: from, ToTableID: to, CartIDs: []string{"c1"}}, false},
		{"merge with blank line", MergeRequest{FromTableID: from, ToTableID: to, CartIDs: []string{""}}, true},
		{"split selected lines", SplitRequest{FromTableID: from, ToTableID: to, CartIDs: []string{"c1", "c2"}}, false},
		{"split without lines", SplitRequest{FromTableID: from, ToTableID: to}, true},
		// same table is left to the floor rules, which answer SAME_TABLE
		{"transfer onto itself", TransferRequest{FromTableID: from, ToTableID: from}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate.Struct(tt.req)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
