package printer

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// TablePrinter prints camera information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintCameraList prints cameras in a table format.
func (t *TablePrinter) PrintCameraList(cameras []CameraRow) error {
	if len(cameras) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tNAME\tMODEL\tSERIAL\tINTERFACE\tACCESS")

	// Print rows.
	for _, c := range cameras {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Model, c.Serial, c.InterfaceID, c.Access)
	}

	return nil
}

// PrintFeatureList prints features in a table format.
func (t *TablePrinter) PrintFeatureList(features []FeatureRow) error {
	if len(features) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "NAME\tCATEGORY\tTYPE\tACCESS\tVALUE\tUNIT")

	// Print rows.
	for _, f := range features {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", f.Name, f.Category, f.Type, f.Access, f.Value, f.Unit)
	}

	return nil
}

// PrintFeatureDetail prints the full metadata of a single feature.
func (t *TablePrinter) PrintFeatureDetail(f FeatureDetail) error {
	fmt.Fprintf(t.writer, "Name:         %s\n", f.Name)
	fmt.Fprintf(t.writer, "Display name: %s\n", f.DisplayName)
	fmt.Fprintf(t.writer, "Category:     %s\n", f.Category)

	if f.Description != "" {
		fmt.Fprintf(t.writer, "Description:  %s\n", f.Description)
	}
	if f.Tooltip != "" {
		fmt.Fprintf(t.writer, "Tooltip:      %s\n", f.Tooltip)
	}

	fmt.Fprintf(t.writer, "Type:         %s\n", f.Type)
	fmt.Fprintf(t.writer, "Access:       %s\n", f.Access)
	fmt.Fprintf(t.writer, "Visibility:   %s\n", f.Visibility)

	if f.Unit != "" {
		fmt.Fprintf(t.writer, "Unit:         %s\n", f.Unit)
	}

	fmt.Fprintf(t.writer, "Streamable:   %t\n", f.Streamable)

	if f.Value != "" {
		fmt.Fprintf(t.writer, "Value:        %s\n", f.Value)
	}
	if f.Range != "" {
		fmt.Fprintf(t.writer, "Range:        %s\n", f.Range)
	}
	if f.Entries != "" {
		fmt.Fprintf(t.writer, "Entries:      %s\n", f.Entries)
	}

	return nil
}

// PrintFrameList prints captured frames in a table format.
func (t *TablePrinter) PrintFrameList(frames []FrameRow) error {
	if len(frames) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	// Print header.
	fmt.Fprintln(tw, "ID\tSTATUS\tRESOLUTION\tSIZE\tTIMESTAMP")

	// Print rows.
	for _, f := range frames {
		fmt.Fprintf(tw, "%d\t%s\t%dx%d\t%s\t%d\n",
			f.ID,
			f.Status,
			f.Width, f.Height,
			FormatBytes(f.SizeBytes),
			f.TimestampNS,
		)
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
