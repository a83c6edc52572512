package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"stockflow/internal/models"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
)

const dispatchNoteBucket = "dispatch-notes"

// DispatchNoteService renders and stores the dispatch note PDF for a fully
// shipped transfer. Failures here never block the shipment itself.
type DispatchNoteService interface {
	Generate(ctx context.Context, transfer *models.StockTransfer, items []*models.StockTransferItem, products map[uuid.UUID]*models.Product, sourceBranch, destBranch *models.Branch) (string, error)
	RegenerateURL(transfer *models.StockTransfer) (string, error)
}

type dispatchNoteService struct {
	storage StorageService
}

func NewDispatchNoteService(storage StorageService) DispatchNoteService {
	return &dispatchNoteService{storage: storage}
}

func (s *dispatchNoteService) Generate(ctx context.Context, transfer *models.StockTransfer, items []*models.StockTransferItem, products map[uuid.UUID]*models.Product, sourceBranch, destBranch *models.Branch) (string, error) {
	pdfBytes, err := renderDispatchNote(transfer, items, products, sourceBranch, destBranch)
	if err != nil {
		return "", fmt.Errorf("failed to render dispatch note: %w", err)
	}
	if len(pdfBytes) == 0 {
		return "", fmt.Errorf("rendered dispatch note is empty")
	}

	if err := s.storage.EnsureBucketExists(ctx, dispatchNoteBucket); err != nil {
		return "", err
	}

	objectName := dispatchNoteObjectName(transfer)
	if err := s.storage.UploadDocument(ctx, dispatchNoteBucket, objectName, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		return "", fmt.Errorf("failed to store dispatch note: %w", err)
	}

	return s.storage.GetPresignedURL(dispatchNoteBucket, objectName, 7*24*time.Hour)
}

// RegenerateURL issues a fresh presigned URL for an already-stored note.
func (s *dispatchNoteService) RegenerateURL(transfer *models.StockTransfer) (string, error) {
	return s.storage.GetPresignedURL(dispatchNoteBucket, dispatchNoteObjectName(transfer), 7*24*time.Hour)
}

func dispatchNoteObjectName(transfer *models.StockTransfer) string {
	return fmt.Sprintf("%s-%s.pdf", transfer.TenantID.String(), transfer.TransferNumber)
}

func renderDispatchNote(transfer *models.StockTransfer, items []*models.StockTransferItem, products map[uuid.UUID]*models.Product, sourceBranch, destBranch *models.Branch) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	marginX := 20.0
	marginY := 20.0
	pdf.SetMargins(marginX, marginY, marginX)
	pdf.SetAutoPageBreak(true, marginY)

	pdf.SetFont("Arial", "B", 16)
	pdf.SetTextColor(33, 37, 41)

	pdf.SetXY(marginX, marginY)
	pdf.Cell(0, 10, "STOCK TRANSFER DISPATCH NOTE")
	pdf.Ln(15)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Transfer Number: %s", transfer.TransferNumber))
	pdf.Ln(8)
	if transfer.ShippedAt != nil {
		pdf.Cell(0, 8, fmt.Sprintf("Shipped: %s", transfer.ShippedAt.Format("02-Jan-2006")))
		pdf.Ln(8)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Priority: %s", transfer.Priority))
	pdf.Ln(8)
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, "FROM:")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, sourceBranch.Name)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, "TO:")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, destBranch.Name)
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(240, 240, 240)

	headers := []string{"SKU", "Product", "Qty Shipped", "Avg Cost"}
	colWidths := []float64{35, 75, 30, 30}
	for i, header := range headers {
		pdf.CellFormat(colWidths[i], 8, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.SetFillColor(255, 255, 255)

	for _, item := range items {
		if item.QtyShipped == 0 {
			continue
		}
		sku := ""
		name := item.ProductID.String()
		if product, ok := products[item.ProductID]; ok {
			sku = product.SKU
			name = product.Name
		}
		pdf.CellFormat(colWidths[0], 8, sku, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[1], 8, name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[2], 8, fmt.Sprintf("%d", item.QtyShipped), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidths[3], 8, formatPence(item.AvgUnitCostPence), "1", 0, "R", false, 0, "")
		pdf.Ln(8)
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(128, 128, 128)
	pdf.Cell(0, 5, "This is a computer generated dispatch note")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatPence(pence int64) string {
	return fmt.Sprintf("%d.%02d", pence/100, pence%100)
}
