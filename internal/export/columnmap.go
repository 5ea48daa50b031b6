package export

import (
	"fmt"
	"strings"
	"time"
)

// Transform post-processes a resolved source value for one target column.
// A transform error means the special case failed, which is distinct from
// a rule simply having no transform; only the former is logged.
type Transform func(value string, rec *ExportRecord) (string, error)

// Rule maps one target column of a bank export either to a fixed value or
// to a canonical source field with an optional transform.
type Rule struct {
	Target    string
	Source    string
	Fixed     string
	IsFixed   bool
	Transform Transform
}

// FromSource builds a source-backed rule.
func FromSource(target, source string) Rule {
	return Rule{Target: target, Source: source}
}

// FromSourceT builds a source-backed rule with a transform.
func FromSourceT(target, source string, t Transform) Rule {
	return Rule{Target: target, Source: source, Transform: t}
}

// Fixed builds a fixed-value rule.
func Fixed(target, value string) Rule {
	return Rule{Target: target, Fixed: value, IsFixed: true}
}

// SourceValue resolves one canonical source field of the record. The
// second return is false when the field was not backed by a catalogue
// column, which makes the whole record ineligible for banks requiring it.
func (r *ExportRecord) SourceValue(source string) (string, bool) {
	if !r.HasSource(source) {
		return "", false
	}
	switch source {
	case "filename":
		return r.Filename, true
	case "title":
		return r.Title, true
	case "description":
		return r.Description, true
	case "keywords":
		return r.Keywords, true
	case "created_date":
		return r.CreateDate, true
	case "editorial":
		if r.Editorial {
			return "yes", true
		}
		return "no", true
	case "vector":
		if r.Vector {
			return "yes", true
		}
		return "no", true
	case "location":
		return r.Location, true
	case "year":
		return r.Year, true
	case "username":
		return r.Username, true
	case "copyright":
		return r.Copyright, true
	case "country":
		return r.Country, true
	case "super_keywords":
		return r.SuperTags, true
	case "price":
		return r.Price, true
	case "mature":
		return "no", true
	case "nudity":
		return "0", true
	case "shutterstock_cats":
		return strings.Join(r.Categories["ShutterStock"], ","), true
	case "adobe_cat_id":
		return firstCategory(r.Categories["AdobeStock"]), true
	case "dreamstime_cat1":
		return categoryAt(r.Categories["Dreamstime"], 0), true
	case "dreamstime_cat2":
		return categoryAt(r.Categories["Dreamstime"], 1), true
	case "dreamstime_cat3":
		return categoryAt(r.Categories["Dreamstime"], 2), true
	case "bigstock_cat":
		return strings.Join(r.Categories["BigStockPhoto"], ","), true
	case "rf123_cat":
		return strings.Join(r.Categories["123RF"], ","), true
	case "canstock_cat":
		return strings.Join(r.Categories["CanStockPhoto"], ","), true
	case "pond5_cat":
		return strings.Join(r.Categories["Pond5"], ","), true
	case "getty_cat":
		return strings.Join(r.Categories["GettyImages"], ","), true
	case "deposit_cat":
		return strings.Join(r.Categories["DepositPhotos"], ","), true
	case "primary_category":
		return categoryAt(r.Categories["Alamy"], 0), true
	case "secondary_category":
		return categoryAt(r.Categories["Alamy"], 1), true
	default:
		return "", false
	}
}

func firstCategory(cats []string) string {
	return categoryAt(cats, 0)
}

func categoryAt(cats []string, i int) string {
	if i < len(cats) {
		return cats[i]
	}
	return ""
}

// editorialToNumeric renders the editorial flag as "1"/"0" for the one
// bank that wants numbers instead of yes/no.
func editorialToNumeric(value string, _ *ExportRecord) (string, error) {
	if value == "yes" {
		return "1", nil
	}
	return "0", nil
}

// licenseFromEditorial picks the license code from the editorial flag.
func licenseFromEditorial(value string, _ *ExportRecord) (string, error) {
	if value == "yes" {
		return "RF-E", nil
	}
	return "RF", nil
}

// checkPeople flags keyword lists that suggest people in the frame.
func checkPeople(value string, _ *ExportRecord) (string, error) {
	lower := strings.ToLower(value)
	if strings.Contains(lower, "people") || strings.Contains(lower, "crowd") {
		return "crowd", nil
	}
	return "0", nil
}

// checkProperty flags keyword lists that suggest property in the frame.
func checkProperty(value string, _ *ExportRecord) (string, error) {
	lower := strings.ToLower(value)
	if strings.Contains(lower, "house") || strings.Contains(lower, "building") {
		return "Y", nil
	}
	return "N", nil
}

// imageTypeFromFilename classifies the file as video, illustration or
// photo by extension.
func imageTypeFromFilename(value string, _ *ExportRecord) (string, error) {
	switch {
	case hasAnyExtension(value, videoExtensions):
		return "V", nil
	case hasAnyExtension(value, illustrationExtensions):
		return "I", nil
	default:
		return "P", nil
	}
}

// gettyDate reformats DD.MM.YYYY into the exact timestamp format the
// Getty ingest requires.
func gettyDate(value string, _ *ExportRecord) (string, error) {
	t, err := time.Parse("02.01.2006", strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("invalid creation date %q: %w", value, err)
	}
	return t.Format("01/02/2006") + " 12:00:00 +0000", nil
}

// bankColumnMaps defines the export projection of every supported bank.
// Rule order is the column order of the written row.
var bankColumnMaps = map[string][]Rule{
	"ShutterStock": {
		FromSource("Filename", "filename"),
		FromSource("Description", "description"),
		FromSource("Keywords", "keywords"),
		FromSource("Categories", "shutterstock_cats"),
		FromSource("Editorial", "editorial"),
		FromSource("Mature content", "mature"),
		FromSource("illustration", "vector"),
	},
	"AdobeStock": {
		FromSource("Filename", "filename"),
		FromSource("Title", "description"),
		FromSource("Keywords", "keywords"),
		FromSource("Category", "adobe_cat_id"),
		Fixed("Releases", ""),
	},
	"Dreamstime": {
		FromSource("Filename", "filename"),
		FromSource("Image Name", "title"),
		FromSource("Description", "description"),
		FromSource("Category 1", "dreamstime_cat1"),
		FromSource("Category 2", "dreamstime_cat2"),
		FromSource("Category 3", "dreamstime_cat3"),
		FromSource("keywords", "keywords"),
		Fixed("Free", "0"),
		Fixed("W-EL", "1"),
		Fixed("P-EL", "1"),
		Fixed("SR-EL", "0"),
		Fixed("SR-Price", "0"),
		FromSourceT("Editorial", "editorial", editorialToNumeric),
		Fixed("MR doc Ids", "0"),
		Fixed("Pr Docs", "0"),
	},
	"DepositPhotos": {
		FromSource("Filename", "filename"),
		FromSource("description", "description"),
		FromSource("Keywords", "keywords"),
		FromSource("Nudity", "nudity"),
		FromSource("Editorial", "editorial"),
	},
	"BigStockPhoto": {
		FromSource("filename", "filename"),
		FromSource("description", "description"),
		FromSource("keywords", "keywords"),
		FromSource("categories", "bigstock_cat"),
		FromSource("illustration", "vector"),
		FromSource("editorial", "editorial"),
	},
	"123RF": {
		FromSource("oldfilename", "filename"),
		Fixed("123rf_filename", ""),
		FromSource("description", "description"),
		FromSource("keywords", "keywords"),
		FromSource("country", "country"),
		FromSource("categories", "rf123_cat"),
	},
	"CanStockPhoto": {
		FromSource("filename", "filename"),
		FromSource("title", "title"),
		FromSource("description", "description"),
		FromSource("keywords", "keywords"),
		FromSource("categories", "canstock_cat"),
	},
	"Pond5": {
		FromSource("originalfilename", "filename"),
		FromSource("title", "title"),
		FromSource("description", "description"),
		FromSource("keywords", "keywords"),
		FromSource("location", "location"),
		Fixed("specifysource", ""),
		FromSource("copyright", "copyright"),
		FromSource("price", "price"),
		FromSourceT("imagetype", "filename", imageTypeFromFilename),
		FromSource("categories", "pond5_cat"),
	},
	"GettyImages": {
		FromSource("file name", "filename"),
		FromSourceT("created date", "created_date", gettyDate),
		FromSource("description", "description"),
		FromSource("country", "location"),
		Fixed("brief code", ""),
		FromSource("title", "title"),
		FromSource("keywords", "keywords"),
		FromSource("categories", "getty_cat"),
	},
	"Alamy": {
		FromSource("Filename", "filename"),
		FromSource("Caption", "title"),
		FromSource("Tags", "keywords"),
		FromSourceT("License type", "editorial", licenseFromEditorial),
		FromSource("Username", "username"),
		FromSource("Super Tags", "super_keywords"),
		FromSource("Location", "location"),
		FromSource("Date taken", "year"),
		FromSourceT("Number of People", "keywords", checkPeople),
		Fixed("Model release", "NA"),
		FromSourceT("Is there property in this image", "keywords", checkProperty),
		Fixed("Property release", "NA"),
		FromSource("Primary category", "primary_category"),
		FromSource("Secondary category", "secondary_category"),
		FromSourceT("Image Type", "filename", imageTypeFromFilename),
		Fixed("Exclusive to Alamy", "N"),
		Fixed("Additional Info", ""),
	},
}

// ColumnMap returns the projection rules for bank. An unknown bank is a
// configuration error.
func ColumnMap(bank string) ([]Rule, error) {
	rules, ok := bankColumnMaps[bank]
	if !ok {
		return nil, fmt.Errorf("unsupported photobank %q", bank)
	}
	return rules, nil
}
