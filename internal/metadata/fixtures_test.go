package metadata

import (
	"fmt"
	"strings"
)

// pkgOpts shapes one EXPERIMENT_PACKAGE fixture.
type pkgOpts struct {
	runs       []string
	layout     string
	platform   string
	sampleTags [][2]string
	isPublic   string
}

func packageXML(o pkgOpts) string {
	if o.layout == "" {
		o.layout = "PAIRED"
	}
	if o.platform == "" {
		o.platform = "ILLUMINA"
	}
	if o.isPublic == "" {
		o.isPublic = "true"
	}

	var runs strings.Builder
	for _, r := range o.runs {
		fmt.Fprintf(&runs, `<RUN accession="%s" total_spots="100" total_bases="15000" size="4096" is_public="%s">
        <IDENTIFIERS><PRIMARY_ID>%s</PRIMARY_ID></IDENTIFIERS>
      </RUN>`, r, o.isPublic, r)
	}

	var tags strings.Builder
	for _, kv := range o.sampleTags {
		fmt.Fprintf(&tags, `<SAMPLE_ATTRIBUTE><TAG>%s</TAG><VALUE>%s</VALUE></SAMPLE_ATTRIBUTE>`, kv[0], kv[1])
	}
	sampleAttrs := ""
	if tags.Len() > 0 {
		sampleAttrs = "<SAMPLE_ATTRIBUTES>" + tags.String() + "</SAMPLE_ATTRIBUTES>"
	}

	return fmt.Sprintf(`<EXPERIMENT_PACKAGE>
    <EXPERIMENT accession="SRX100" alias="exp-1">
      <IDENTIFIERS><PRIMARY_ID>SRX100</PRIMARY_ID></IDENTIFIERS>
      <STUDY_REF accession="SRP100">
        <IDENTIFIERS>
          <PRIMARY_ID>SRP100</PRIMARY_ID>
          <EXTERNAL_ID namespace="BioProject">PRJNA100</EXTERNAL_ID>
        </IDENTIFIERS>
      </STUDY_REF>
      <DESIGN>
        <DESIGN_DESCRIPTION>gut samples</DESIGN_DESCRIPTION>
        <LIBRARY_DESCRIPTOR>
          <LIBRARY_NAME>lib-1</LIBRARY_NAME>
          <LIBRARY_STRATEGY>AMPLICON</LIBRARY_STRATEGY>
          <LIBRARY_SOURCE>METAGENOMIC</LIBRARY_SOURCE>
          <LIBRARY_SELECTION>PCR</LIBRARY_SELECTION>
          <LIBRARY_LAYOUT><%s/></LIBRARY_LAYOUT>
        </LIBRARY_DESCRIPTOR>
      </DESIGN>
      <PLATFORM><%s><INSTRUMENT_MODEL>Model X</INSTRUMENT_MODEL></%s></PLATFORM>
    </EXPERIMENT>
    <SUBMISSION accession="SRA100" center_name="Some Center"/>
    <STUDY accession="SRP100">
      <DESCRIPTOR><STUDY_TITLE>Gut study</STUDY_TITLE></DESCRIPTOR>
    </STUDY>
    <SAMPLE accession="SRS100">
      <IDENTIFIERS>
        <PRIMARY_ID>SRS100</PRIMARY_ID>
        <EXTERNAL_ID namespace="BioSample">SAMN100</EXTERNAL_ID>
      </IDENTIFIERS>
      <SAMPLE_NAME><TAXON_ID>408170</TAXON_ID><SCIENTIFIC_NAME>human gut metagenome</SCIENTIFIC_NAME></SAMPLE_NAME>
      %s
    </SAMPLE>
    <Pool>
      <Member accession="SRS100" sample_name="S1" sample_title="Sample one" spots="100" bases="15000" tax_id="408170" organism="human gut metagenome">
        <IDENTIFIERS><EXTERNAL_ID namespace="BioSample">SAMN100</EXTERNAL_ID></IDENTIFIERS>
      </Member>
    </Pool>
    <RUN_SET>%s</RUN_SET>
  </EXPERIMENT_PACKAGE>`, o.layout, o.platform, o.platform, sampleAttrs, runs.String())
}

func packageSet(pkgs ...string) []byte {
	return []byte("<?xml version=\"1.0\"?>\n<EXPERIMENT_PACKAGE_SET>" + strings.Join(pkgs, "\n") + "</EXPERIMENT_PACKAGE_SET>")
}
