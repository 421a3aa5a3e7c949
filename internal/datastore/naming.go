package datastore

import (
	"fmt"
	"strconv"
)

const recordKeyPrefix = "P_"

// Namespace is the KV namespace backing a scalar template.
func Namespace(template string, version int) string {
	return fmt.Sprintf("%s_V%d", template, version)
}

// RankedNamespace is the ranked-store namespace backing a ranked template.
func RankedNamespace(template string, version int) string {
	return fmt.Sprintf("%s_O_V%d", template, version)
}

// RecordKey is the per-entity key inside a scalar namespace.
func RecordKey(entityID int64) string {
	return recordKeyPrefix + strconv.FormatInt(entityID, 10)
}

// RankedKey is the per-entity key inside a ranked namespace.
func RankedKey(entityID int64) string {
	return strconv.FormatInt(entityID, 10)
}

func autosaveKey(template string, entityID int64) string {
	return "autosave/" + template + "/" + strconv.FormatInt(entityID, 10)
}
