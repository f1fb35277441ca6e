package testsupport

import "github.com/goliatone/go-formwizard/pkg/model"

// DocumentTypes lists the selector values of the identity document group.
var DocumentTypes = []string{"aadharNumber", "panNumber", "voterId", "ppbNumber"}

// documentFiles pairs each document-number field with its upload field.
var documentFiles = map[string]string{
	"aadharNumber": "aadharFile",
	"panNumber":    "panFile",
	"voterId":      "voterFile",
	"ppbNumber":    "ppbFile",
}

// KYCDefinition returns a four step registration wizard used by engine tests:
// identity (document type selector with four exclusive number/file pairs),
// contact (cascading state/district), land (legacy holding alias, conditional
// borewell depth) and bank (passbook and photo uploads).
func KYCDefinition() *model.Definition {
	identity := model.StepDefinition{
		Index: 0,
		ID:    "identity",
		Label: "Identity",
		Fields: []model.FieldDefinition{
			{Name: "fullName", Label: "Full name", Required: true, Validations: []model.ValidationRule{{Kind: model.ValidationRuleMaxLength, Params: map[string]string{"value": "80"}}}},
			{Name: "dateOfBirth", Label: "Date of birth", Validations: []model.ValidationRule{{Kind: model.ValidationRuleAge, Params: map[string]string{"min": "18", "max": "90"}}}},
			{Name: "documentType", Label: "Document type", Required: true, Validations: []model.ValidationRule{{Kind: model.ValidationRuleEnum, Params: map[string]string{"values": "aadharNumber,panNumber,voterId,ppbNumber"}}}},
			{Name: "aadharNumber", Label: "Aadhaar number", Validations: []model.ValidationRule{{Kind: model.ValidationRuleAadhaar}}},
			{Name: "aadharFile", Label: "Aadhaar copy", Attachment: &model.AttachmentPolicy{}},
			{Name: "panNumber", Label: "PAN", Validations: []model.ValidationRule{{Kind: model.ValidationRulePAN}}},
			{Name: "panFile", Label: "PAN copy", Attachment: &model.AttachmentPolicy{}},
			{Name: "voterId", Label: "Voter id", Validations: []model.ValidationRule{{Kind: model.ValidationRuleVoterID}}},
			{Name: "voterFile", Label: "Voter id copy", Attachment: &model.AttachmentPolicy{}},
			{Name: "ppbNumber", Label: "Pattadar passbook number"},
			{Name: "ppbFile", Label: "Pattadar passbook copy", Attachment: &model.AttachmentPolicy{}},
		},
	}
	for _, docType := range DocumentTypes {
		identity.Rules = append(identity.Rules,
			model.ConditionalRule{WhenField: "documentType", WhenValue: docType, ThenField: docType, Effect: model.EffectRequire},
			model.ConditionalRule{WhenField: "documentType", WhenValue: docType, ThenField: documentFiles[docType], Effect: model.EffectRequire},
		)
	}

	contact := model.StepDefinition{
		Index: 1,
		ID:    "contact",
		Label: "Contact",
		Fields: []model.FieldDefinition{
			{Name: "mobileNumber", Label: "Mobile number", Validations: []model.ValidationRule{{Kind: model.ValidationRulePhone}}},
			{Name: "alternativeType", Label: "Alternative contact relation"},
			{Name: "alternativeRelationType", Label: "Alternative relation type"},
			{Name: "state", Label: "State", Options: &model.OptionsSource{Source: "states"}},
			{Name: "district", Label: "District", Options: &model.OptionsSource{Source: "districts", Parent: "state"}},
			{Name: "pincode", Label: "Pincode", Validations: []model.ValidationRule{{Kind: model.ValidationRulePincode}}},
		},
	}

	land := model.StepDefinition{
		Index: 2,
		ID:    "land",
		Label: "Land",
		Fields: []model.FieldDefinition{
			{Name: "currentLandHolding", Label: "Current land holding (acres)", Validations: []model.ValidationRule{{Kind: model.ValidationRuleMin, Params: map[string]string{"value": "0"}}}},
			{Name: "totalLandHolding", Label: "Total land holding (acres)"},
			{Name: "waterSource", Label: "Water source"},
			{Name: "borewellDepth", Label: "Borewell depth (ft)"},
		},
		Rules: []model.ConditionalRule{
			{WhenField: "waterSource", WhenValue: "borewell", ThenField: "borewellDepth", Effect: model.EffectShow},
			{WhenField: "waterSource", WhenValue: "borewell", ThenField: "borewellDepth", Effect: model.EffectRequire},
		},
	}

	bank := model.StepDefinition{
		Index: 3,
		ID:    "bank",
		Label: "Bank",
		Fields: []model.FieldDefinition{
			{Name: "bankName", Label: "Bank name"},
			{Name: "ifscCode", Label: "IFSC", Validations: []model.ValidationRule{{Kind: model.ValidationRuleIFSC}}},
			{Name: "passbook", Label: "Passbook", Attachment: &model.AttachmentPolicy{Accept: []string{"image/*", "application/pdf"}}},
			{Name: "photo", Label: "Photo", Attachment: &model.AttachmentPolicy{Accept: []string{"image/*"}}},
		},
	}

	return &model.Definition{
		ID:        "kyc",
		Label:     "Farmer KYC",
		Resource:  "farmers",
		AssetBase: "https://assets.example.org/uploads",
		Steps:     []model.StepDefinition{identity, contact, land, bank},
		Mapping: model.CanonicalMapping{
			Fields: []model.CanonicalField{
				{Name: "fullName", Aliases: []string{"fullName"}},
				{Name: "dateOfBirth", Aliases: []string{"dateOfBirth"}},
				{Name: "documentType", Aliases: []string{"documentType"}},
				{Name: "mobileNumber", Aliases: []string{"mobileNumber"}},
				{Name: "alternativeRelationType", Aliases: []string{"alternativeRelationType", "alternativeType"}},
				{Name: "state", Aliases: []string{"state"}},
				{Name: "district", Aliases: []string{"district"}},
				{Name: "pincode", Aliases: []string{"pincode"}},
				{Name: "currentLandHolding", Aliases: []string{"currentLandHolding", "totalLandHolding"}},
				{Name: "waterSource", Aliases: []string{"waterSource"}},
				{Name: "borewellDepth", Aliases: []string{"borewellDepth"}},
				{Name: "bankName", Aliases: []string{"bankName"}},
				{Name: "ifscCode", Aliases: []string{"ifscCode"}},
				{Name: "passbook", Aliases: []string{"passbook"}, Attachment: true, Sources: []string{"passbookFileName", "passbookUrl", "passbook"}},
				{Name: "photo", Aliases: []string{"photo"}, Attachment: true, Sources: []string{"photoFileName", "photoUrl", "photo"}},
			},
			Groups: []model.ExclusiveGroup{
				{
					Selector: "documentType",
					Targets:  []string{"documentNumber", "documentFile"},
					Choices: map[string][]string{
						"aadharNumber": {"aadharNumber", "aadharFile"},
						"panNumber":    {"panNumber", "panFile"},
						"voterId":      {"voterId", "voterFile"},
						"ppbNumber":    {"ppbNumber", "ppbFile"},
					},
				},
			},
		},
	}
}
