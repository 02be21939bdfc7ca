package taxonomy

import "fmt"

// NodeType is the canonical type tag carried by every taxonomy node.
// The tags follow schema.org naming where a schema.org type exists.
type NodeType string

const (
	NodeOrganization         NodeType = "Organization"
	NodePerson               NodeType = "Person"
	NodeThing                NodeType = "Thing"
	NodeProduct              NodeType = "Product"
	NodeDigitalDocument      NodeType = "DigitalDocument"
	NodeVulnerability        NodeType = "Vulnerability"
	NodePlace                NodeType = "Place"
	NodeEmail                NodeType = "Email"
	NodeWebsite              NodeType = "Website"
	NodePhone                NodeType = "Phone"
	NodePassport             NodeType = "Passport"
	NodeSchool               NodeType = "School"
	NodeBankAccount          NodeType = "BankAccount"
	NodePatent               NodeType = "Patent"
	NodeCertification        NodeType = "Certification"
	NodePublishedWork        NodeType = "PublishedWork"
	NodeSocialSecurityNumber NodeType = "SocialSecurityNumber"
	NodeSocialMedia          NodeType = "SocialMedia"
	NodeDataBreach           NodeType = "DataBreach"
)

// schemaMap collapses every canonical tag onto one of the three projection
// labels the graph store indexes: Organization, Person or Thing.
var schemaMap = map[NodeType]NodeType{
	NodeOrganization:         NodeOrganization,
	NodePerson:               NodePerson,
	NodeThing:                NodeThing,
	NodeProduct:              NodeThing,
	NodeDigitalDocument:      NodeThing,
	NodeVulnerability:        NodeThing,
	NodePlace:                NodeThing,
	NodeEmail:                NodeThing,
	NodeWebsite:              NodeThing,
	NodePhone:                NodeThing,
	NodePassport:             NodeThing,
	NodeSchool:               NodeOrganization,
	NodeBankAccount:          NodeThing,
	NodePatent:               NodeThing,
	NodeCertification:        NodeThing,
	NodePublishedWork:        NodeThing,
	NodeSocialSecurityNumber: NodeThing,
	NodeSocialMedia:          NodeThing,
	NodeDataBreach:           NodeThing,
}

// attributeSchema lists the constrainable attributes per node type beyond
// the universal "name". Constraint construction validates against this set.
var attributeSchema = map[NodeType][]string{
	NodePerson:        {"givenName", "familyName", "email", "nationality", "address", "jobTitle"},
	NodeOrganization:  {"legalName", "address", "foundingDate"},
	NodeSchool:        {"legalName", "address"},
	NodePlace:         {"address", "geo"},
	NodeProduct:       {"brand", "model"},
	NodeEmail:         {"domain"},
	NodeWebsite:       {"url"},
	NodePhone:         {"areaCode"},
	NodePublishedWork: {"author", "datePublished"},
	NodeDataBreach:    {"datePublished", "recordCount"},
	NodeVulnerability: {"cveId", "severity"},
}

// Valid reports whether t is one of the canonical node type tags.
func (t NodeType) Valid() bool {
	_, ok := schemaMap[t]
	return ok
}

// Schema returns the projection label for t: one of Organization, Person or
// Thing. Unknown tags collapse to Thing.
func (t NodeType) Schema() NodeType {
	if s, ok := schemaMap[t]; ok {
		return s
	}
	return NodeThing
}

// HasAttribute reports whether name is a constrainable attribute for this
// node type. Every type carries "name".
func (t NodeType) HasAttribute(name string) bool {
	if name == "name" {
		return true
	}
	for _, a := range attributeSchema[t] {
		if a == name {
			return true
		}
	}
	return false
}

// ParseNodeType converts a wire tag to a NodeType. The match is exact; the
// wire format never carries lowercase or aliased tags.
func ParseNodeType(s string) (NodeType, error) {
	t := NodeType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown node type %q", s)
	}
	return t, nil
}

// NodeTypes returns all canonical node type tags in stable order.
func NodeTypes() []NodeType {
	return []NodeType{
		NodeOrganization, NodePerson, NodeThing, NodeProduct,
		NodeDigitalDocument, NodeVulnerability, NodePlace, NodeEmail,
		NodeWebsite, NodePhone, NodePassport, NodeSchool, NodeBankAccount,
		NodePatent, NodeCertification, NodePublishedWork,
		NodeSocialSecurityNumber, NodeSocialMedia, NodeDataBreach,
	}
}

// DataSource identifies an external system an ingress worker can fetch from.
type DataSource string

const (
	SourceCVE                  DataSource = "CVE"
	SourceDataScraper          DataSource = "dataScraper"
	SourcePeopleDataLabs       DataSource = "peopleDataLabs"
	SourceCoAuthors            DataSource = "coAuthors"
	SourceSocialMediaExtractor DataSource = "socialMediaExtractor"
	SourceEmailBreachDetector  DataSource = "emailBreachDetector"
	SourceSamsDataset          DataSource = "samsDataset"
)

// DataSources returns all known data source tags in stable order.
func DataSources() []DataSource {
	return []DataSource{
		SourceCVE, SourceDataScraper, SourcePeopleDataLabs, SourceCoAuthors,
		SourceSocialMediaExtractor, SourceEmailBreachDetector, SourceSamsDataset,
	}
}

// Valid reports whether d is one of the known data source tags.
func (d DataSource) Valid() bool {
	for _, s := range DataSources() {
		if s == d {
			return true
		}
	}
	return false
}
