package storage

import (
	"fmt"
	"strings"
)

// receiptObject returns the object key for a receipt: returns/<returnID>/<name>. Either part
// is rejected if it is empty or could escape its directory.
func receiptObject(returnID, name string) (string, error) {
	returnID, err := pathSegment("return id", returnID)
	if err != nil {
		return "", err
	}
	name, err = pathSegment("receipt name", name)
	if err != nil {
		return "", err
	}
	return "returns/" + returnID + "/" + name, nil
}

func pathSegment(label, value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", fmt.Errorf("storage: %s is required", label)
	case value == "." || strings.Contains(value, ".."):
		return "", fmt.Errorf("storage: %s %q is not a plain name", label, value)
	case strings.ContainsAny(value, "/\\\x00"):
		return "", fmt.Errorf("storage: %s %q contains a path separator", label, value)
	}
	return value, nil
}
