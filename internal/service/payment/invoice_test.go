package payment

import (
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invoicePattern = regexp.MustCompile(`^INV-\d+-[0-9A-F]{6}$`)

func TestSnowflakeInvoiceNumbers_FormatAndUniqueness(t *testing.T) {
	gen, err := NewInvoiceNumberGenerator(7)
	require.NoError(t, err)

	const workers, perWorker = 8, 250
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, workers*perWorker)
		wg   sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				number, err := gen.Next()
				if !assert.NoError(t, err) {
					return
				}
				assert.Regexp(t, invoicePattern, number)
				mu.Lock()
				seen[number] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestNewInvoiceNumberGenerator_RejectsBadNode(t *testing.T) {
	_, err := NewInvoiceNumberGenerator(5000)
	assert.Error(t, err)
}
