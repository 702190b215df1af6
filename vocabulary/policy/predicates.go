package policy

import "github.com/c360studio/semstreams/vocabulary"

// Entity predicates define attributes common to every canonical entity.
const (
	// EntityType is the canonical entity type (Policy, Coverage, ...).
	EntityType = "policy.entity.type"

	// EntityName is the canonical display name.
	EntityName = "policy.entity.name"

	// EntityFingerprint is the deterministic identity fingerprint.
	EntityFingerprint = "policy.entity.fingerprint"

	// EntityConfidence is the extraction confidence in [0,1].
	EntityConfidence = "policy.entity.confidence"

	// EntityWorkflow scopes an entity to the workflow run that produced it.
	EntityWorkflow = "policy.entity.workflow"

	// EntityDocument links an entity to the source document.
	EntityDocument = "policy.entity.document"
)

// Policy predicates describe the policy entity itself.
const (
	// PolicyNumber is the policy number from the declarations.
	PolicyNumber = "policy.policy.number"

	// PolicyEffectiveDate is the ISO-8601 effective date.
	PolicyEffectiveDate = "policy.policy.effective_date"

	// PolicyExpirationDate is the ISO-8601 expiration date.
	PolicyExpirationDate = "policy.policy.expiration_date"

	// PolicyCarrier links the policy to the issuing carrier organization.
	PolicyCarrier = "policy.policy.carrier"

	// PolicyLineOfBusiness is the line of business (e.g. commercial auto).
	PolicyLineOfBusiness = "policy.policy.line_of_business"
)

// Coverage predicates describe coverage grants and their effective state.
const (
	// CoverageLimit is the coverage limit amount.
	CoverageLimit = "policy.coverage.limit"

	// CoverageDeductible is the coverage deductible amount.
	CoverageDeductible = "policy.coverage.deductible"

	// CoverageState is the effective state after endorsement synthesis.
	// Values: Covered, Added, Expanded Coverage, Limited, Partially Covered
	CoverageState = "policy.coverage.state"

	// CoverageScope describes what the coverage applies to.
	CoverageScope = "policy.coverage.scope"

	// CoverageTaxonomySlug is the normalized taxonomy identifier.
	CoverageTaxonomySlug = "policy.coverage.taxonomy_slug"
)

// Exclusion predicates describe exclusions and their effective state.
const (
	// ExclusionState is the effective state after endorsement synthesis.
	// Values: Excluded, Partially Excluded, Removed, Restored
	ExclusionState = "policy.exclusion.state"

	// ExclusionScope describes what the exclusion removes from coverage.
	ExclusionScope = "policy.exclusion.scope"

	// ExclusionCarveBack records an exception that restores coverage.
	ExclusionCarveBack = "policy.exclusion.carve_back"
)

// Endorsement predicates describe policy-modifying forms.
const (
	// EndorsementFormNumber is the form number (e.g. "CA T3 53").
	EndorsementFormNumber = "policy.endorsement.form_number"

	// EndorsementEffect is the modification effect category.
	// Values: adds, expands, limits, restores, introduces, narrows, removes
	EndorsementEffect = "policy.endorsement.effect"
)

// Location, vehicle, and driver predicates describe schedule entities.
const (
	// LocationAddress is the normalized street address.
	LocationAddress = "policy.location.address"

	// LocationTIV is the total insured value at the location.
	LocationTIV = "policy.location.tiv"

	// VehicleVIN is the vehicle identification number.
	VehicleVIN = "policy.vehicle.vin"

	// DriverLicense is the driver license number.
	DriverLicense = "policy.driver.license_number"
)

// Claim predicates describe loss-run claim records.
const (
	// ClaimNumber is the carrier claim number.
	ClaimNumber = "policy.claim.number"

	// ClaimLossDate is the ISO-8601 date of loss.
	ClaimLossDate = "policy.claim.loss_date"

	// ClaimPaid is the total paid amount.
	ClaimPaid = "policy.claim.paid"

	// ClaimStatus is the claim status (open, closed).
	ClaimStatus = "policy.claim.status"
)

// Relationship predicates link canonical entities. These mirror the closed
// relationship vocabulary used by the relationship extraction pass.
const (
	// RelHasInsured links a policy to its named insured.
	RelHasInsured = "policy.rel.has_insured"

	// RelHasCoverage links a policy to a coverage grant.
	RelHasCoverage = "policy.rel.has_coverage"

	// RelModifiedBy links a coverage or exclusion to a modifying endorsement.
	RelModifiedBy = "policy.rel.modified_by"

	// RelHasLocation links a policy to a scheduled location.
	RelHasLocation = "policy.rel.has_location"

	// RelHasClaim links a policy to a loss-run claim.
	RelHasClaim = "policy.rel.has_claim"

	// RelHasVehicle links a policy to a scheduled vehicle.
	RelHasVehicle = "policy.rel.has_vehicle"

	// RelHasDriver links a policy to a scheduled driver.
	RelHasDriver = "policy.rel.has_driver"

	// RelSameAs links duplicate canonical entities discovered across documents.
	RelSameAs = "policy.rel.same_as"

	// RelSupportedBy links an entity to the document chunk evidencing it.
	RelSupportedBy = "policy.rel.supported_by"
)

// Provenance predicates record where an assertion came from.
const (
	// ProvPage is the 1-based source page number.
	ProvPage = "policy.prov.page"

	// ProvChunk links to the source chunk entity.
	ProvChunk = "policy.prov.chunk"

	// ProvClause is the clause reference within the source form.
	ProvClause = "policy.prov.clause"
)

func init() {
	registerEntityPredicates()
	registerPolicyPredicates()
	registerProvisionPredicates()
	registerSchedulePredicates()
	registerRelationshipPredicates()
}

func registerEntityPredicates() {
	vocabulary.Register(EntityType,
		vocabulary.WithDescription("Canonical entity type"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"entityType"))

	vocabulary.Register(EntityName,
		vocabulary.WithDescription("Canonical display name"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"name"))

	vocabulary.Register(EntityFingerprint,
		vocabulary.WithDescription("Deterministic identity fingerprint"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"fingerprint"))

	vocabulary.Register(EntityConfidence,
		vocabulary.WithDescription("Extraction confidence score"),
		vocabulary.WithDataType("float"),
		vocabulary.WithIRI(Namespace+"confidence"))

	vocabulary.Register(EntityWorkflow,
		vocabulary.WithDescription("Workflow run that produced the entity"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"workflow"))

	vocabulary.Register(EntityDocument,
		vocabulary.WithDescription("Source document"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"document"))
}

func registerPolicyPredicates() {
	vocabulary.Register(PolicyNumber,
		vocabulary.WithDescription("Policy number"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"policyNumber"))

	vocabulary.Register(PolicyEffectiveDate,
		vocabulary.WithDescription("Policy effective date"),
		vocabulary.WithDataType("date"),
		vocabulary.WithIRI(Namespace+"effectiveDate"))

	vocabulary.Register(PolicyExpirationDate,
		vocabulary.WithDescription("Policy expiration date"),
		vocabulary.WithDataType("date"),
		vocabulary.WithIRI(Namespace+"expirationDate"))

	vocabulary.Register(PolicyCarrier,
		vocabulary.WithDescription("Issuing carrier"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"carrier"))

	vocabulary.Register(PolicyLineOfBusiness,
		vocabulary.WithDescription("Line of business"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"lineOfBusiness"))
}

func registerProvisionPredicates() {
	vocabulary.Register(CoverageLimit,
		vocabulary.WithDescription("Coverage limit amount"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"limit"))

	vocabulary.Register(CoverageDeductible,
		vocabulary.WithDescription("Coverage deductible amount"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"deductible"))

	vocabulary.Register(CoverageState,
		vocabulary.WithDescription("Effective coverage state after synthesis"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"coverageState"))

	vocabulary.Register(CoverageScope,
		vocabulary.WithDescription("Coverage scope"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"coverageScope"))

	vocabulary.Register(CoverageTaxonomySlug,
		vocabulary.WithDescription("Normalized coverage taxonomy identifier"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"taxonomySlug"))

	vocabulary.Register(ExclusionState,
		vocabulary.WithDescription("Effective exclusion state after synthesis"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"exclusionState"))

	vocabulary.Register(ExclusionScope,
		vocabulary.WithDescription("Exclusion scope"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"exclusionScope"))

	vocabulary.Register(ExclusionCarveBack,
		vocabulary.WithDescription("Exception restoring coverage within an exclusion"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"carveBack"))

	vocabulary.Register(EndorsementFormNumber,
		vocabulary.WithDescription("Endorsement form number"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"formNumber"))

	vocabulary.Register(EndorsementEffect,
		vocabulary.WithDescription("Endorsement modification effect"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"endorsementEffect"))
}

func registerSchedulePredicates() {
	vocabulary.Register(LocationAddress,
		vocabulary.WithDescription("Normalized location address"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"address"))

	vocabulary.Register(LocationTIV,
		vocabulary.WithDescription("Total insured value at location"),
		vocabulary.WithDataType("float"),
		vocabulary.WithIRI(Namespace+"tiv"))

	vocabulary.Register(VehicleVIN,
		vocabulary.WithDescription("Vehicle identification number"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"vin"))

	vocabulary.Register(DriverLicense,
		vocabulary.WithDescription("Driver license number"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"licenseNumber"))

	vocabulary.Register(ClaimNumber,
		vocabulary.WithDescription("Carrier claim number"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"claimNumber"))

	vocabulary.Register(ClaimLossDate,
		vocabulary.WithDescription("Date of loss"),
		vocabulary.WithDataType("date"),
		vocabulary.WithIRI(Namespace+"lossDate"))

	vocabulary.Register(ClaimPaid,
		vocabulary.WithDescription("Total paid amount"),
		vocabulary.WithDataType("float"),
		vocabulary.WithIRI(Namespace+"paidAmount"))

	vocabulary.Register(ClaimStatus,
		vocabulary.WithDescription("Claim status"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"claimStatus"))
}

func registerRelationshipPredicates() {
	vocabulary.Register(RelHasInsured,
		vocabulary.WithDescription("Policy to named insured"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"hasInsured"))

	vocabulary.Register(RelHasCoverage,
		vocabulary.WithDescription("Policy to coverage grant"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"hasCoverage"))

	vocabulary.Register(RelModifiedBy,
		vocabulary.WithDescription("Provision to modifying endorsement"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"modifiedBy"))

	vocabulary.Register(RelHasLocation,
		vocabulary.WithDescription("Policy to scheduled location"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"hasLocation"))

	vocabulary.Register(RelHasClaim,
		vocabulary.WithDescription("Policy to loss-run claim"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"hasClaim"))

	vocabulary.Register(RelHasVehicle,
		vocabulary.WithDescription("Policy to scheduled vehicle"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"hasVehicle"))

	vocabulary.Register(RelHasDriver,
		vocabulary.WithDescription("Policy to scheduled driver"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"hasDriver"))

	vocabulary.Register(RelSameAs,
		vocabulary.WithDescription("Duplicate canonical entity link"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI("http://www.w3.org/2002/07/owl#sameAs"))

	vocabulary.Register(RelSupportedBy,
		vocabulary.WithDescription("Entity to evidencing document chunk"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"supportedBy"))

	vocabulary.Register(ProvPage,
		vocabulary.WithDescription("Source page number"),
		vocabulary.WithDataType("int"),
		vocabulary.WithIRI(Namespace+"sourcePage"))

	vocabulary.Register(ProvChunk,
		vocabulary.WithDescription("Source chunk"),
		vocabulary.WithDataType("entity_id"),
		vocabulary.WithIRI(Namespace+"sourceChunk"))

	vocabulary.Register(ProvClause,
		vocabulary.WithDescription("Clause reference in source form"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"clauseReference"))
}
