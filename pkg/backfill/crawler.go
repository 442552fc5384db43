package backfill

import (
	"context"
	"fmt"
)

// SignatureCrawler paginates a tree's transaction-signature history via
// ChainRPC, one page at a time, newest first: each next page is requested
// with before set to the last signature of the previous page.
type SignatureCrawler struct {
	rpc      ChainRPC
	pageSize int
}

// NewSignatureCrawler returns a SignatureCrawler. pageSize defaults to
// 1000 when zero or negative.
func NewSignatureCrawler(rpc ChainRPC, pageSize int) *SignatureCrawler {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &SignatureCrawler{rpc: rpc, pageSize: pageSize}
}

// CrawlAll pages through every signature recorded for address, calling
// visit per page until the chain reports no more pages or visit returns
// an error (which aborts the crawl and is returned as-is).
func (c *SignatureCrawler) CrawlAll(ctx context.Context, address []byte, visit func([]SignatureInfo) error) error {
	before := ""
	for {
		page, err := c.rpc.GetSignaturesForAddress(ctx, address, before, c.pageSize)
		if err != nil {
			return fmt.Errorf("crawl signatures: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		if err := visit(page); err != nil {
			return err
		}
		if len(page) < c.pageSize {
			return nil
		}
		before = page[len(page)-1].Signature
	}
}

// TransactionFetcher resolves signatures to full transaction detail.
type TransactionFetcher struct {
	rpc ChainRPC
}

// NewTransactionFetcher returns a TransactionFetcher.
func NewTransactionFetcher(rpc ChainRPC) *TransactionFetcher {
	return &TransactionFetcher{rpc: rpc}
}

// FetchAll resolves every signature in sigs to a TransactionInfo. A
// single failed fetch is returned wrapped with the offending signature;
// callers that need best-effort behavior should fetch one at a time
// instead.
func (f *TransactionFetcher) FetchAll(ctx context.Context, sigs []string) ([]*TransactionInfo, error) {
	txs := make([]*TransactionInfo, 0, len(sigs))
	for _, sig := range sigs {
		tx, err := f.rpc.GetTransaction(ctx, sig)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", sig, err)
		}
		txs = append(txs, tx)
	}
	return txs, nil
}
