package doc

import "github.com/solidb/solidb/pkg/dberr"

// validateEdgeDocument checks the required _from/_to fields on an edge
// collection document, ported from original_source's validate_edge_document.
func validateEdgeDocument(data map[string]interface{}) error {
	if err := requireNonEmptyString(data, "_from"); err != nil {
		return err
	}
	return requireNonEmptyString(data, "_to")
}

func requireNonEmptyString(data map[string]interface{}, field string) error {
	raw, ok := data[field]
	if !ok {
		return dberr.InvalidDocument("edge document must have a " + field + " field")
	}
	s, ok := raw.(string)
	if !ok {
		return dberr.InvalidDocument("edge document " + field + " field must be a string")
	}
	if s == "" {
		return dberr.InvalidDocument("edge document " + field + " field must be a non-empty string")
	}
	return nil
}
