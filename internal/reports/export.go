package reports

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	acks "incident-cloud/internal/acks/domain"
	incidents "incident-cloud/internal/incidents/domain"
	roster "incident-cloud/internal/roster/domain"
)

// BuildIncidentPDF renders a minimal PDF report for an incident,
// covering the lifecycle summary, the roster, and acknowledgments.
func BuildIncidentPDF(incident *incidents.Incident, assignments []roster.Assignment, summary *acks.Summary) ([]byte, error) {
	if incident == nil {
		return nil, errors.New("incident report: nil incident")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Incident Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Number: %s", incident.Number))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Title: %s", incident.Title))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Priority: %s", incident.Priority))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Status: %s", incident.Status))
	pdf.Ln(5)
	if incident.PrimaryResponderID != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Primary Responder: %s", incident.PrimaryResponderID))
		pdf.Ln(5)
	}
	if !incident.ReportedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Reported: %s", incident.ReportedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	if !incident.ResolvedAt.IsZero() {
		pdf.Cell(0, 6, fmt.Sprintf("Resolved: %s", incident.ResolvedAt.Format(time.RFC3339)))
		pdf.Ln(5)
	}
	if summary != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Acknowledged: %d/%d (%d%%)",
			summary.AcknowledgedCount, summary.TotalNotified, summary.Percentage))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	// Roster table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(60, 6, "Personnel", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Joined", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Arrived", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, assignment := range assignments {
		arrived := ""
		if !assignment.ArrivedAt.IsZero() {
			arrived = assignment.ArrivedAt.Format("15:04:05")
		}
		pdf.CellFormat(60, 6, assignment.PersonnelID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 6, assignment.AssignedAt.Format("15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, arrived, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildIncidentXLSX renders a minimal XLSX report for an incident.
func BuildIncidentXLSX(incident *incidents.Incident, assignments []roster.Assignment, summary *acks.Summary) ([]byte, error) {
	if incident == nil {
		return nil, errors.New("incident report: nil incident")
	}
	f := excelize.NewFile()
	summarySheet := "summary"
	rosterSheet := "roster"
	acksSheet := "acknowledgments"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(rosterSheet)
	f.NewSheet(acksSheet)

	_ = f.SetCellValue(summarySheet, "A1", "Incident Report")
	_ = f.SetCellValue(summarySheet, "A3", "Number")
	_ = f.SetCellValue(summarySheet, "B3", incident.Number)
	_ = f.SetCellValue(summarySheet, "A4", "Title")
	_ = f.SetCellValue(summarySheet, "B4", incident.Title)
	_ = f.SetCellValue(summarySheet, "A5", "Priority")
	_ = f.SetCellValue(summarySheet, "B5", incident.Priority)
	_ = f.SetCellValue(summarySheet, "A6", "Status")
	_ = f.SetCellValue(summarySheet, "B6", string(incident.Status))
	_ = f.SetCellValue(summarySheet, "A7", "Primary Responder")
	_ = f.SetCellValue(summarySheet, "B7", incident.PrimaryResponderID)
	if !incident.ReportedAt.IsZero() {
		_ = f.SetCellValue(summarySheet, "A8", "Reported")
		_ = f.SetCellValue(summarySheet, "B8", incident.ReportedAt.Format(time.RFC3339))
	}
	if summary != nil {
		_ = f.SetCellValue(summarySheet, "A9", "Acknowledged")
		_ = f.SetCellValue(summarySheet, "B9", fmt.Sprintf("%d/%d", summary.AcknowledgedCount, summary.TotalNotified))
		_ = f.SetCellValue(summarySheet, "A10", "Acknowledgment Rate (%)")
		_ = f.SetCellValue(summarySheet, "B10", summary.Percentage)
	}

	_ = f.SetCellValue(rosterSheet, "A1", "Personnel")
	_ = f.SetCellValue(rosterSheet, "B1", "Joined")
	_ = f.SetCellValue(rosterSheet, "C1", "Arrived")
	for i, assignment := range assignments {
		row := i + 2
		_ = f.SetCellValue(rosterSheet, fmt.Sprintf("A%d", row), assignment.PersonnelID)
		_ = f.SetCellValue(rosterSheet, fmt.Sprintf("B%d", row), assignment.AssignedAt.Format(time.RFC3339))
		if !assignment.ArrivedAt.IsZero() {
			_ = f.SetCellValue(rosterSheet, fmt.Sprintf("C%d", row), assignment.ArrivedAt.Format(time.RFC3339))
		}
	}

	_ = f.SetCellValue(acksSheet, "A1", "Personnel")
	_ = f.SetCellValue(acksSheet, "B1", "Acknowledged At")
	if summary != nil {
		for i, ack := range summary.List {
			row := i + 2
			_ = f.SetCellValue(acksSheet, fmt.Sprintf("A%d", row), ack.PersonnelID)
			_ = f.SetCellValue(acksSheet, fmt.Sprintf("B%d", row), ack.AcknowledgedAt.Format(time.RFC3339))
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
