package policy

// Namespace is the base IRI prefix for all policy ontology terms.
const Namespace = "https://policypipe.dev/ontology/"

// EntityNamespace is the base IRI for policy entity instances.
const EntityNamespace = "https://policypipe.dev/entity/"

// Class IRIs define the types of entities in the policy ontology.
const (
	// ClassPolicy represents an insurance policy.
	ClassPolicy = Namespace + "Policy"

	// ClassOrganization represents a named insured, carrier, or broker.
	ClassOrganization = Namespace + "Organization"

	// ClassCoverage represents a coverage grant.
	ClassCoverage = Namespace + "Coverage"

	// ClassExclusion represents a coverage exclusion.
	ClassExclusion = Namespace + "Exclusion"

	// ClassCondition represents a policy condition.
	ClassCondition = Namespace + "Condition"

	// ClassEndorsement represents a policy-modifying endorsement form.
	ClassEndorsement = Namespace + "Endorsement"

	// ClassLocation represents an insured premises or scheduled location.
	ClassLocation = Namespace + "Location"

	// ClassClaim represents a loss-run claim record.
	ClassClaim = Namespace + "Claim"

	// ClassDefinition represents a defined policy term.
	ClassDefinition = Namespace + "Definition"

	// ClassForm represents a policy form attached to the policy.
	ClassForm = Namespace + "Form"

	// ClassVehicle represents a scheduled vehicle.
	ClassVehicle = Namespace + "Vehicle"

	// ClassDriver represents a scheduled driver.
	ClassDriver = Namespace + "Driver"

	// ClassDocumentChunk represents a chunk of source document text used as
	// extraction evidence.
	ClassDocumentChunk = Namespace + "DocumentChunk"
)

// ClassIRIMap maps entity type names to their class IRIs.
var ClassIRIMap = map[string]string{
	"Policy":       ClassPolicy,
	"Organization": ClassOrganization,
	"Coverage":     ClassCoverage,
	"Exclusion":    ClassExclusion,
	"Condition":    ClassCondition,
	"Endorsement":  ClassEndorsement,
	"Location":     ClassLocation,
	"Claim":        ClassClaim,
	"Definition":   ClassDefinition,
	"Form":         ClassForm,
	"Vehicle":      ClassVehicle,
	"Driver":       ClassDriver,
}
