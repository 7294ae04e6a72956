package mapping

// fieldPatterns lists the known header aliases per canonical field, as
// regular expressions matched against the normalized column name. Order
// matters only for readability; scoring takes the best match.
var fieldPatterns = map[string][]string{
	"date_of_service":  {`date.*service`, `dos`, `service.*date`, `visit.*date`, `^date of service$`},
	"location":         {`location`, `loc`, `site`, `facility`, `^location$`},
	"mrn":              {`^mrn$`, `^m\.r\.n\.?$`, `medical.*record`, `patient.*id`, `patient.*number`},
	"first_name":       {`^fn$`, `^first name$`, `^firstname$`, `first.*name`, `fname`, `given.*name`},
	"last_name":        {`^ln$`, `^last name$`, `^lastname$`, `last.*name`, `lname`, `surname`, `family.*name`},
	"reason_for_visit": {`reason.*visit`, `chief.*complaint`, `presenting.*problem`, `^reason for visit$`},
	"points":           {`^points$`, `points`, `score`, `total.*points`},
	"percent":          {`^percent$`, `percent`, `percentage`, `%`, `pct`},
	"category":         {`^category$`, `category`, `cat`, `risk.*category`},
	"pca_confirmed":    {`pca.*confirmed`, `prostate.*cancer`, `cancer.*confirmed`, `^pca confirmed`},
	"gleason_grade":    {`^gg$`, `^gleason$`, `gleason`, `gg`, `gleason.*grade`, `grade`},
	"age_group":        {`age.*group`, `age.*range`, `^age group$`},
	"family_history":   {`^fh$`, `family.*history`, `fh`, `fhx`, `family.*hx`, `^fh of prostate$`},
	"race":             {`^race$`, `race`, `ethnicity`, `racial`},
	"genetic_mutation": {`genetic`, `mutation`, `gene`, `brca`, `^genetic risk$`, `^genetic$`},
}

// epsaPatterns extends the base aliases for ePSA risk-calculator exports,
// whose score columns come labeled after the calculator rather than the
// field.
var epsaPatterns = map[string][]string{
	"points":  {`^epsa$`, `epsa.*score`, `epsa.*points`},
	"percent": {`epsa.*percent`, `likelihood`, `probability`},
}

// patternsFor returns the alias set for a dataset type. Unknown types fall
// back to the generic set.
func patternsFor(dataType string) map[string][]string {
	if dataType != "epsa" {
		return fieldPatterns
	}
	merged := make(map[string][]string, len(fieldPatterns))
	for field, pats := range fieldPatterns {
		if extra, ok := epsaPatterns[field]; ok {
			combined := make([]string, 0, len(extra)+len(pats))
			combined = append(combined, extra...)
			combined = append(combined, pats...)
			merged[field] = combined
			continue
		}
		merged[field] = pats
	}
	return merged
}

// criticalPatterns are the identification fields that must be captured when
// the file carries them in any recognizable form. Literal aliases score
// exact; the regex entries score just below.
var criticalPatterns = map[string][]string{
	"mrn":        {`MRN`, `M.R.N.`, `mrn`, `medical.*record`, `patient.*id`, `patient.*number`},
	"first_name": {`FN`, `F.N.`, `fn`, `First Name`, `FirstName`, `first.*name`, `fname`, `given.*name`},
	"last_name":  {`LN`, `L.N.`, `ln`, `Last Name`, `LastName`, `last.*name`, `lname`, `surname`, `family.*name`},
}

// criticalOrder fixes the priority of the identification pass.
var criticalOrder = []string{"mrn", "first_name", "last_name"}

// lowThresholdFields accept weaker pattern evidence in the final pass.
var lowThresholdFields = map[string]bool{
	"mrn":             true,
	"first_name":      true,
	"last_name":       true,
	"date_of_service": true,
	"location":        true,
}
