package anchor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"confirmit/internal/anchor/models"
	dErrors "confirmit/pkg/domain-errors"
)

// Digest returns the hex SHA-256 of the entity's canonical JSON encoding.
// encoding/json emits struct fields in declaration order and map keys
// sorted, so equal values always hash equally.
func Digest(entity models.Anchorable) (string, error) {
	canonical, err := json.Marshal(entity)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeValidation, "entity is not serializable")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
