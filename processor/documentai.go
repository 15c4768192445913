package processor

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"docintake/common"
	"docintake/types"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/documentai/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DocumentAIConfig points at a Google Document AI processor. Receipts expect an
// Expense parser and bank statements a Bank Statement parser.
type DocumentAIConfig struct {
	ProjectID   string
	Location    string // default "us"
	ProcessorID string
	// CredentialsFile is a service-account JSON key. Empty uses application
	// default credentials.
	CredentialsFile string
	// Endpoint overrides the regional endpoint.
	Endpoint string
	Timeout  time.Duration
}

// DocumentAIProcessor downloads the document from its FileURL and sends the
// bytes to Document AI's synchronous process method.
type DocumentAIProcessor struct {
	svc   *documentai.Service
	name  string
	fetch *http.Client
	log   *common.Logger
}

func NewDocumentAIProcessor(ctx context.Context, cfg DocumentAIConfig, log *common.Logger, opts ...option.ClientOption) (*DocumentAIProcessor, error) {
	if cfg.ProjectID == "" || cfg.ProcessorID == "" {
		return nil, errors.New("document ai project and processor id are required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://%s-documentai.googleapis.com/", cfg.Location)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if log == nil {
		log = common.NopLogger()
	}

	svcOpts := []option.ClientOption{option.WithEndpoint(cfg.Endpoint)}
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account file: %w", err)
		}
		jwt, err := google.JWTConfigFromJSON(data, documentai.CloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account: %w", err)
		}
		svcOpts = append(svcOpts, option.WithHTTPClient(jwt.Client(ctx)))
	}
	svcOpts = append(svcOpts, opts...)

	svc, err := documentai.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Document AI service: %w", err)
	}

	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, cfg.Location, cfg.ProcessorID)
	log.Info("Document AI processor initialized", "processor", name, "endpoint", cfg.Endpoint)
	return &DocumentAIProcessor{
		svc:   svc,
		name:  name,
		fetch: &http.Client{Timeout: cfg.Timeout},
		log:   log,
	}, nil
}

func (p *DocumentAIProcessor) Process(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req.ReportProgress(10)

	content, mimeType, err := p.download(ctx, req)
	if err != nil {
		return nil, &ProcessingError{DocumentRef: req.Ref(), Reason: "document download failed", Err: err}
	}
	req.ReportProgress(40)

	resp, err := p.svc.Projects.Locations.Processors.Process(p.name, &documentai.GoogleCloudDocumentaiV1ProcessRequest{
		RawDocument: &documentai.GoogleCloudDocumentaiV1RawDocument{
			Content:  base64.StdEncoding.EncodeToString(content),
			MimeType: mimeType,
		},
	}).Context(ctx).Do()
	if err != nil {
		reason := "document ai unavailable"
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			reason = fmt.Sprintf("document ai returned %d: %s", gerr.Code, gerr.Message)
		}
		p.log.Error("processor.documentai.process_error", "job_id", req.JobID, "error", err)
		return nil, &ProcessingError{DocumentRef: req.Ref(), Reason: reason, Err: err}
	}
	req.ReportProgress(80)

	txs := transactionsFromDocument(req.DocType, resp.Document)
	p.log.Info("processor.documentai.response",
		"job_id", req.JobID,
		"transactions", len(txs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	req.ReportProgress(90)
	return &Result{
		Transactions:     txs,
		TransactionCount: len(txs),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func (p *DocumentAIProcessor) download(ctx context.Context, req Request) ([]byte, string, error) {
	if req.FileURL == "" {
		return nil, "", errors.New("fileUrl is required")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.FileURL, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := p.fetch.Do(httpReq)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, "", fmt.Errorf("non-2xx status: %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if len(content) == 0 {
		return nil, "", errors.New("document is empty")
	}
	return content, documentMimeType(resp.Header.Get("Content-Type"), req), nil
}

func documentMimeType(header string, req Request) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	for _, name := range []string{req.FileName, req.FileURL} {
		if name == "" {
			continue
		}
		if i := strings.IndexAny(name, "?#"); i >= 0 {
			name = name[:i]
		}
		if mt := mime.TypeByExtension(path.Ext(name)); mt != "" {
			mt, _, _ = strings.Cut(mt, ";")
			return mt
		}
	}
	return "application/pdf"
}

func transactionsFromDocument(docType types.DocType, doc *documentai.GoogleCloudDocumentaiV1Document) []types.Transaction {
	txs := []types.Transaction{}
	if doc == nil {
		return txs
	}
	if docType == types.DocTypeReceipt {
		if tx, ok := receiptTransaction(doc.Entities); ok {
			txs = append(txs, tx)
		}
		return txs
	}
	for _, e := range doc.Entities {
		if tx, ok := statementTransaction(e); ok {
			txs = append(txs, tx)
		}
	}
	return txs
}

// receiptTransaction folds an Expense parser result into one debit.
func receiptTransaction(entities []*documentai.GoogleCloudDocumentaiV1DocumentEntity) (types.Transaction, bool) {
	tx := types.Transaction{Direction: types.Debit}
	var (
		haveAmount bool
		items      []string
	)
	for _, e := range entities {
		switch e.Type {
		case "supplier_name":
			tx.Merchant = strings.TrimSpace(e.MentionText)
		case "total_amount":
			tx.Amount, haveAmount = entityAmount(e)
		case "receipt_date", "purchase_date", "invoice_date":
			if tx.Date == "" {
				tx.Date = entityDate(e)
			}
		case "line_item":
			if d := propertyText(e, "line_item/description"); d != "" {
				items = append(items, d)
			}
		}
	}
	if !haveAmount {
		return tx, false
	}
	tx.Description = strings.Join(items, ", ")
	if tx.Description == "" {
		tx.Description = tx.Merchant
	}
	return tx, true
}

// statementTransaction reads one table_item row of a Bank Statement parser
// result. Deposits are credits and withdrawals debits.
func statementTransaction(e *documentai.GoogleCloudDocumentaiV1DocumentEntity) (types.Transaction, bool) {
	if e.Type != "table_item" {
		return types.Transaction{}, false
	}
	for _, kind := range []struct {
		field string
		dir   types.Direction
	}{
		{"transaction_withdrawal", types.Debit},
		{"transaction_deposit", types.Credit},
	} {
		amount := property(e, "table_item/"+kind.field)
		if amount == nil {
			continue
		}
		v, ok := entityAmount(amount)
		if !ok {
			continue
		}
		desc := propertyText(e, "table_item/"+kind.field+"_description")
		tx := types.Transaction{
			Amount:      v,
			Direction:   kind.dir,
			Description: desc,
			Merchant:    desc,
		}
		if d := property(e, "table_item/"+kind.field+"_date"); d != nil {
			tx.Date = entityDate(d)
		}
		return tx, true
	}
	return types.Transaction{}, false
}

func property(e *documentai.GoogleCloudDocumentaiV1DocumentEntity, typ string) *documentai.GoogleCloudDocumentaiV1DocumentEntity {
	for _, p := range e.Properties {
		if p.Type == typ {
			return p
		}
	}
	return nil
}

func propertyText(e *documentai.GoogleCloudDocumentaiV1DocumentEntity, typ string) string {
	if p := property(e, typ); p != nil {
		return strings.TrimSpace(p.MentionText)
	}
	return ""
}

func entityAmount(e *documentai.GoogleCloudDocumentaiV1DocumentEntity) (float64, bool) {
	if nv := e.NormalizedValue; nv != nil && nv.MoneyValue != nil {
		m := nv.MoneyValue
		return float64(m.Units) + float64(m.Nanos)/1e9, true
	}
	raw := e.MentionText
	if e.NormalizedValue != nil && e.NormalizedValue.Text != "" {
		raw = e.NormalizedValue.Text
	}
	raw = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			return r
		}
		return -1
	}, raw)
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func entityDate(e *documentai.GoogleCloudDocumentaiV1DocumentEntity) string {
	if nv := e.NormalizedValue; nv != nil {
		if d := nv.DateValue; d != nil && d.Year > 0 {
			return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
		}
		if nv.Text != "" {
			return nv.Text
		}
	}
	return strings.TrimSpace(e.MentionText)
}
