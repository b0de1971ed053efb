// Package testutil holds XMIR fixtures and filesystem helpers shared by
// package tests.
package testutil

// HelloWorld is the XMIR of a one-object program printing a greeting,
// as produced by the parse stage. It carries refs, an alias and a bare
// global base, so every built-in step has work to do.
const HelloWorld = `<?xml version="1.0" encoding="UTF-8"?>
<program name="foo.x.main">
  <metas>
    <meta line="1">
      <head>package</head>
      <tail>foo.x</tail>
      <part>foo.x</part>
    </meta>
    <meta line="2">
      <head>alias</head>
      <tail>org.eolang.io.stdout</tail>
      <part>org.eolang.io.stdout</part>
    </meta>
  </metas>
  <objects>
    <o abstract="" line="4" name="main">
      <o line="4" name="args" ref="4"/>
      <o base="stdout" line="5" name="@" ref="5">
        <o base="string" data="string" line="5">Hello, world!</o>
      </o>
    </o>
  </objects>
</program>
`

// DuplicateBinding parses fine but binds "x" twice inside one object:
//
//	[args] > main
//	  seq > @
//	    true > x
//	    false > x
const DuplicateBinding = `<?xml version="1.0" encoding="UTF-8"?>
<program name="f.main">
  <metas>
    <meta line="1">
      <head>package</head>
      <tail>f</tail>
      <part>f</part>
    </meta>
  </metas>
  <objects>
    <o abstract="" line="2" name="main">
      <o line="2" name="args"/>
      <o base="seq" line="3" name="@">
        <o base="true" line="4" name="x"/>
        <o base="false" line="5" name="x"/>
      </o>
    </o>
  </objects>
</program>
`

// NotXML is source text that never went through the parse stage.
const NotXML = "[args] > main\n  stdout \"hi\" > @\n"
