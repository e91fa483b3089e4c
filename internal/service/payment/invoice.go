package payment

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type InvoiceNumberGenerator interface {
	Next() (string, error)
}

// SnowflakeInvoiceNumbers issues INV-<snowflake id>-<6 hex chars>. The
// snowflake part is time ordered and unique per node, the suffix is random.
type SnowflakeInvoiceNumbers struct {
	node *snowflake.Node
}

func NewInvoiceNumberGenerator(nodeID int64) (*SnowflakeInvoiceNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeInvoiceNumbers{node: node}, nil
}

func (g *SnowflakeInvoiceNumbers) Next() (string, error) {
	var suffix [3]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	return fmt.Sprintf("INV-%s-%s", g.node.Generate().String(), strings.ToUpper(hex.EncodeToString(suffix[:]))), nil
}

var _ InvoiceNumberGenerator = (*SnowflakeInvoiceNumbers)(nil)
