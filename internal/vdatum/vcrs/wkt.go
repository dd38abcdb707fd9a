package vcrs

import (
	"fmt"
	"strings"
)

// WKT renders the vertical component as a WKT2-style VERTCRS node. The
// remark rides along in a REMARK attribute so downstream tools that only
// keep WKT still preserve the provenance record.
func (v VerticalCRS) WKT() string {
	var b strings.Builder
	fmt.Fprintf(&b, `VERTCRS["%s",`, v.DatumName)
	fmt.Fprintf(&b, `VDATUM["%s"],`, v.DatumName)
	b.WriteString(`CS[vertical,1],`)
	b.WriteString(`AXIS["gravity-related height (H)",up,LENGTHUNIT["metre",1]],`)
	fmt.Fprintf(&b, `REMARK["%s"]]`, v.Remark)
	return b.String()
}

// WKT renders the full compound descriptor. The horizontal member is a
// reference by authority code rather than a full definition; the horizontal
// system passes through transformation unchanged.
func (c CompoundCRS) WKT() string {
	var b strings.Builder
	fmt.Fprintf(&b, `COMPOUNDCRS["%s",`, c.Name())
	fmt.Fprintf(&b, `GEOGCRS["%s",ID["EPSG",%d]],`, horizontalName(c.HorizontalEPSG), c.HorizontalEPSG)
	b.WriteString(c.Vertical.WKT())
	b.WriteString("]")
	return b.String()
}
