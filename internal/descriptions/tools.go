package descriptions

import "sort"

// Tool names exposed by the server
const (
	ToolValidatePDF     = "form_validate_pdf"
	ToolDetectFields    = "form_detect_fields"
	ToolApplyFields     = "form_apply_fields"
	ToolListFields      = "form_list_fields"
	ToolSearchDirectory = "pdf_search_directory"
	ToolServerInfo      = "pdf_server_info"
)

const (
	ValidatePDFDescription = `Check that a PDF can be turned into a fillable form.

**When to use:** Before detecting or applying fields, especially for documents of unknown origin.

**What it checks:** the file exists and is within size limits, the document parses and can be saved again, it is not encrypted. Reports the page count, whether a text layer exists and how many form fields the document already has.

**Examples:**
• "Is scanned-intake-form.pdf usable for field detection?"
• "Does lease.pdf already have form fields?"

**Best practices:** A warning with code pdf_has_acrofields means new fields will be added next to the existing ones unless strip_existing is set when applying.`

	DetectFieldsDescription = `Detect form field regions on every page of a flat or scanned PDF.

**When to use:** To see what a fillable version would contain without writing anything.

**How it works:** each page is rendered into a 1216x1216 letterboxed image and passed to the form field detection model. Regions are classified as TextBox, ChoiceButton or Signature and returned in reading order with their confidence.

**Examples:**
• "Which fields does the model find on application.pdf?"
• "Detect fields on invoice.pdf with confidence 0.6 and save page previews to /tmp/previews"

**Best practices:** Lower confidence finds more fields at the cost of false positives; valid values are 0.1 to 1.0.`

	ApplyFieldsDescription = `Detect form fields and write a fillable copy of the PDF.

**When to use:** To turn a flat or scanned form into a PDF with real AcroForm fields.

**What you get:** a new PDF (by default next to the input, named <name>_with_fields.pdf) with text fields, checkboxes and signature fields named textbox_0, choicebutton_0, signature_0 and so on, numbered across the whole document.

**Examples:**
• "Make intake-form.pdf fillable"
• "Make contract.pdf fillable, replacing its old fields, and save it as contract-fillable.pdf"

**Best practices:** Validate first. Use strip_existing to flatten fields that are already present before adding the detected ones.`

	ListFieldsDescription = `List the AcroForm fields of a PDF with their type, page and position.

**When to use:** To inspect the result of form_apply_fields or any other fillable PDF.

**Examples:**
• "Which fields does intake-form_with_fields.pdf have on page 2?"`

	SearchDirectoryDescription = `Find PDF files in the configured directory with optional fuzzy filename matching.

**When to use:** To discover which documents are available before validating or processing them.

**Examples:**
• "Find all intake forms" (query: "intake form")
• "List PDFs in /forms/2024"`

	ServerInfoDescription = `Show server configuration, detection model, renderer status, available tools and the PDF files in the default directory.

**When to use:** At the start of a session to learn what the server can do.`
)

// Tool is the short form of a tool description
type Tool struct {
	Name       string
	Summary    string
	Usage      string
	Parameters string
}

// Tools lists the tools in the order they are usually used
var Tools = []Tool{
	{
		Name:       ToolServerInfo,
		Summary:    "Get server information, available tools and directory contents",
		Usage:      "Call first to see the configured model and the available documents.",
		Parameters: "none",
	},
	{
		Name:       ToolSearchDirectory,
		Summary:    "Search for PDF files in a directory with optional fuzzy search",
		Usage:      "Use to find documents to process.",
		Parameters: "directory (optional): directory to search, query (optional): fuzzy filename query",
	},
	{
		Name:       ToolValidatePDF,
		Summary:    "Validate that a PDF can be processed",
		Usage:      "Use before detection; reports encryption, existing fields and the text layer.",
		Parameters: "path (required): path to the PDF file",
	},
	{
		Name:       ToolDetectFields,
		Summary:    "Detect form fields without modifying the document",
		Usage:      "Use to preview what a fillable version would contain.",
		Parameters: "path (required), confidence (optional, 0.1-1.0), model (optional), preview_dir (optional)",
	},
	{
		Name:       ToolApplyFields,
		Summary:    "Detect form fields and write a fillable PDF",
		Usage:      "Use to create the fillable document.",
		Parameters: "path (required), output (optional), confidence (optional), model (optional), strip_existing (optional)",
	},
	{
		Name:       ToolListFields,
		Summary:    "List the form fields of a PDF",
		Usage:      "Use to inspect a fillable document.",
		Parameters: "path (required): path to the PDF file",
	},
}

// ToolDescriptions maps tool names to their comprehensive descriptions
var ToolDescriptions = map[string]string{
	ToolValidatePDF:     ValidatePDFDescription,
	ToolDetectFields:    DetectFieldsDescription,
	ToolApplyFields:     ApplyFieldsDescription,
	ToolListFields:      ListFieldsDescription,
	ToolSearchDirectory: SearchDirectoryDescription,
	ToolServerInfo:      ServerInfoDescription,
}

// GetToolDescription returns the comprehensive description for a tool
func GetToolDescription(toolName string) string {
	if desc, exists := ToolDescriptions[toolName]; exists {
		return desc
	}
	return "Tool description not available"
}

// GetAllToolNames returns the sorted names of all tools
func GetAllToolNames() []string {
	names := make([]string, 0, len(ToolDescriptions))
	for name := range ToolDescriptions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
