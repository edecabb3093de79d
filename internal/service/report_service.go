package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/libratrack-api/internal/models"
	appErrors "github.com/noah-isme/libratrack-api/pkg/errors"
	"github.com/noah-isme/libratrack-api/pkg/export"
)

// ReportFormat selects the output renderer.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

type reportLoanLister interface {
	List(ctx context.Context, filter models.LoanFilter) ([]models.Loan, int, error)
}

type reportUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type reportBookReader interface {
	GetByID(ctx context.Context, id string) (*models.Book, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
}

type exporter interface {
	Render(data export.Dataset) ([]byte, error)
}

// Report holds a rendered report ready for download.
type Report struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ReportService renders circulation reports and archives a copy to storage.
type ReportService struct {
	loans   reportLoanLister
	users   reportUserReader
	books   reportBookReader
	storage reportStorage
	csv     exporter
	pdf     exporter
	logger  *zap.Logger
	now     func() time.Time
}

// NewReportService constructs the service.
func NewReportService(loans reportLoanLister, users reportUserReader, books reportBookReader, storage reportStorage, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		loans:   loans,
		users:   users,
		books:   books,
		storage: storage,
		csv:     export.NewCSVExporter(),
		pdf:     export.NewPDFExporter(),
		logger:  logger,
		now:     time.Now,
	}
}

// LoansReport renders all loans matching the filter in the requested format.
func (s *ReportService) LoansReport(ctx context.Context, filter models.LoanFilter, format ReportFormat) (*Report, error) {
	if format != ReportFormatCSV && format != ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	// Reports are unpaginated; pull everything the filter matches.
	filter.Page = 1
	filter.PageSize = 10000

	loans, _, err := s.loans.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list loans for report")
	}

	now := s.now().UTC()
	dataset := export.Dataset{
		Title:   "Loans Report",
		Headers: []string{"Loan ID", "Borrower", "Book", "Status", "Due", "Returned", "Days Overdue"},
		Rows:    make([][]string, 0, len(loans)),
	}

	for i := range loans {
		loan := &loans[i]
		borrowerName := loan.UserID
		if borrower, err := s.users.FindByID(ctx, loan.UserID); err == nil {
			borrowerName = borrower.FullName
		}
		bookTitle := loan.BookID
		if book, err := s.books.GetByID(ctx, loan.BookID); err == nil {
			bookTitle = book.Title
		}

		returned := ""
		if loan.ReturnedAt != nil {
			returned = loan.ReturnedAt.Format("2006-01-02")
		}

		dataset.Rows = append(dataset.Rows, []string{
			loan.ID,
			borrowerName,
			bookTitle,
			string(loan.Status),
			loan.EffectiveDueAt().Format("2006-01-02"),
			returned,
			fmt.Sprintf("%d", loan.OverdueDays(now)),
		})
	}

	renderer := s.csv
	contentType := "text/csv"
	if format == ReportFormatPDF {
		renderer = s.pdf
		contentType = "application/pdf"
	}

	data, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}

	filename := fmt.Sprintf("loans-report-%s.%s", now.Format("20060102-150405"), format)
	if _, err := s.storage.Save(filename, data); err != nil {
		s.logger.Warn("failed to archive report copy", zap.String("filename", filename), zap.Error(err))
	}

	return &Report{Filename: filename, ContentType: contentType, Data: data}, nil
}
