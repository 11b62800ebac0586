package domain

// Treatment types offered by the clinic. Stores accept any description; the
// catalog only feeds choice inputs.
const (
	TreatmentCleaning   = "Cleaning/Prophylaxis"
	TreatmentFilling    = "Dental Filling (Composite)"
	TreatmentRootCanal  = "Root Canal Therapy"
	TreatmentExtraction = "Tooth Extraction"
	TreatmentInvisalign = "Invisalign Consultation"
)

var treatmentCatalog = []string{
	TreatmentCleaning,
	TreatmentFilling,
	TreatmentRootCanal,
	TreatmentExtraction,
	TreatmentInvisalign,
}

// TreatmentCatalog returns a copy of the catalog in display order.
func TreatmentCatalog() []string {
	out := make([]string, len(treatmentCatalog))
	copy(out, treatmentCatalog)
	return out
}

// IsCatalogTreatment reports whether desc is one of the catalog entries.
func IsCatalogTreatment(desc string) bool {
	for _, t := range treatmentCatalog {
		if t == desc {
			return true
		}
	}
	return false
}
